package match

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a user's request.
type Status int

const (
	StatusNone Status = iota
	StatusQueued
	StatusPendingAccept
	StatusSessionReady
	StatusExpired
)

var statusNames = [...]string{
	StatusNone:          "NONE",
	StatusQueued:        "QUEUED",
	StatusPendingAccept: "PENDING_ACCEPT",
	StatusSessionReady:  "SESSION_READY",
	StatusExpired:       "EXPIRED",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus is the inverse of String.
func ParseStatus(v string) (Status, error) {
	for i, n := range statusNames {
		if n == v {
			return Status(i), nil
		}
	}
	return StatusNone, fmt.Errorf("unknown status %q", v)
}

// Criteria is what a requester is willing to be matched on. An empty
// Difficulty means any difficulty; no Topics means any topic.
type Criteria struct {
	Difficulty string
	Topics     []string
}

// UserRequest is the per-user record. Zero times mean "unset".
type UserRequest struct {
	UserID      string
	Status      Status
	Criteria    Criteria
	CreatedAt   time.Time
	SeniorityTs time.Time
	PairID      string
	ExpiresAt   time.Time
	SessionID   string

	// SessionURL and SessionToken are how this user joins the session.
	SessionURL   string
	SessionToken string
}

// Pair is a tentative match. UserA < UserB lexicographically.
type Pair struct {
	ID         string
	UserA      string
	UserB      string
	AAccepted  bool
	BAccepted  bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Difficulty string
	Topic      string
}

// Other returns the partner of user, or "" if user is not a member.
func (p Pair) Other(user string) string {
	switch user {
	case p.UserA:
		return p.UserB
	case p.UserB:
		return p.UserA
	}
	return ""
}

func (p Pair) acceptField(user string) string {
	switch user {
	case p.UserA:
		return "aAccepted"
	case p.UserB:
		return "bAccepted"
	}
	return ""
}

// SessionRecord describes a finalized match, handed to the history recorder.
type SessionRecord struct {
	SessionID  string
	PairID     string
	UserA      string
	UserB      string
	Difficulty string
	Topic      string
	CreatedAt  time.Time
}

// --- hash encoding ---

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeTime(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func encodeTopics(topics []string) string {
	if topics == nil {
		topics = []string{}
	}
	b, _ := json.Marshal(topics)
	return string(b)
}

func decodeTopics(v string) []string {
	var topics []string
	if v == "" || json.Unmarshal([]byte(v), &topics) != nil {
		return []string{}
	}
	return topics
}

func decodeRequest(userID string, h map[string]string) (UserRequest, bool, error) {
	if h["status"] == "" {
		return UserRequest{}, false, nil
	}
	st, err := ParseStatus(h["status"])
	if err != nil {
		return UserRequest{}, false, fmt.Errorf("request %s: %w", userID, err)
	}
	return UserRequest{
		UserID: userID,
		Status: st,
		Criteria: Criteria{
			Difficulty: h["difficulty"],
			Topics:     decodeTopics(h["topics"]),
		},
		CreatedAt:    decodeTime(h["createdAt"]),
		SeniorityTs:  decodeTime(h["seniorityTs"]),
		PairID:       h["pairId"],
		ExpiresAt:    decodeTime(h["expiresAt"]),
		SessionID:    h["sessionId"],
		SessionURL:   h["sessionUrl"],
		SessionToken: h["sessionToken"],
	}, true, nil
}

func encodePair(p Pair) map[string]string {
	return map[string]string{
		"u1":         p.UserA,
		"u2":         p.UserB,
		"aAccepted":  boolFlag(p.AAccepted),
		"bAccepted":  boolFlag(p.BAccepted),
		"expiresAt":  encodeTime(p.ExpiresAt),
		"createdAt":  encodeTime(p.CreatedAt),
		"difficulty": p.Difficulty,
		"topic":      p.Topic,
	}
}

func decodePair(id string, h map[string]string) (Pair, bool) {
	if h["u1"] == "" || h["u2"] == "" {
		return Pair{}, false
	}
	return Pair{
		ID:         id,
		UserA:      h["u1"],
		UserB:      h["u2"],
		AAccepted:  h["aAccepted"] == "1",
		BAccepted:  h["bAccepted"] == "1",
		ExpiresAt:  decodeTime(h["expiresAt"]),
		CreatedAt:  decodeTime(h["createdAt"]),
		Difficulty: h["difficulty"],
		Topic:      h["topic"],
	}, true
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
