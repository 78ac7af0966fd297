package match

// Store layout:
//
//	Q:<difficulty>:<topic>  LIST  FIFO bucket of user ids
//	UB:<user>               SET   bucket keys the user currently occupies
//	R:<user>                HASH  UserRequest
//	PAIR:<pairId>           HASH  Pair
//	IDX:ACTIVE_USERS        SET   queued or pending users
//	IDX:ACTIVE_PAIRS        SET   pending pairs
//	LOCK:match:<a>:<b>      lock  pairing race between two users
//	LOCK:claim:<user>       lock  held while a user's record is rewritten
//	LOCK:pair:<pairId>      lock  held by whoever destroys the pair
const (
	activeUsersKey = "IDX:ACTIVE_USERS"
	activePairsKey = "IDX:ACTIVE_PAIRS"
)

func bucketKey(difficulty, topic string) string { return "Q:" + difficulty + ":" + topic }
func userBucketsKey(user string) string { return "UB:" + user }
func requestKey(user string) string { return "R:" + user }
func pairKey(id string) string { return "PAIR:" + id }
func matchLockKey(a, b string) string { return "LOCK:match:" + a + ":" + b }
func claimKey(user string) string { return "LOCK:claim:" + user }
func pairLockKey(id string) string { return "LOCK:pair:" + id }

// canonical orders two ids lexicographically.
func canonical(x, y string) (string, string) {
	if y < x {
		return y, x
	}
	return x, y
}
