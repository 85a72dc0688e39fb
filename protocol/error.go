package protocol

import "fmt"

// https://kafka.apache.org/protocol#protocol_error_codes

// Error is a Kafka error code with its message and retriability status.
// Handlers send its code in RESET and ABORT extensions.
type Error struct {
	Code        int16
	Message     string
	IsRetriable bool
}

func (e Error) Error() string {
	return fmt.Sprintf("kafka error %d: %s", e.Code, e.Message)
}

// Kafka errors raised by stream handlers
var (
	ErrUnknownServerError       = Error{Code: -1, Message: "The server experienced an unexpected error when processing the request."}
	ErrNone                     = Error{Code: 0}
	ErrOffsetOutOfRange         = Error{Code: 1, Message: "The requested offset is not within the range of offsets maintained by the server."}
	ErrCorruptMessage           = Error{Code: 2, Message: "This message has failed its CRC checksum, exceeds the valid size, has a null key for a compacted topic, or is otherwise corrupt.", IsRetriable: true}
	ErrUnknownTopicOrPartition  = Error{Code: 3, Message: "This server does not host this topic-partition.", IsRetriable: true}
	ErrLeaderNotAvailable       = Error{Code: 5, Message: "There is no leader for this topic-partition as we are in the middle of a leadership election.", IsRetriable: true}
	ErrNotLeaderOrFollower      = Error{Code: 6, Message: "This broker is not the current leader or a replica of the topic partition.", IsRetriable: true}
	ErrRequestTimedOut          = Error{Code: 7, Message: "The request timed out.", IsRetriable: true}
	ErrNetworkException         = Error{Code: 13, Message: "The server disconnected before a response was received.", IsRetriable: true}
	ErrCoordinatorNotAvailable  = Error{Code: 15, Message: "The coordinator is not available.", IsRetriable: true}
	ErrInvalidGroupID           = Error{Code: 24, Message: "The configured groupId is invalid."}
	ErrUnknownMemberID          = Error{Code: 25, Message: "The coordinator is not aware of this member."}
	ErrRebalanceInProgress      = Error{Code: 27, Message: "The group is rebalancing, so a rejoin is needed."}
	ErrTopicAuthorizationFailed = Error{Code: 29, Message: "Topic authorization failed."}
	ErrGroupAuthorizationFailed = Error{Code: 30, Message: "Group authorization failed."}
	ErrInvalidConfig            = Error{Code: 40, Message: "Configuration is invalid."}
)
