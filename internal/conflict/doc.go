// Package conflict decides which copy of a shared entity survives when a
// local edit and a server change race each other.
//
// Resolution is pure and deterministic: both timestamps are normalised to a
// UTC instant with millisecond precision and compared. A newer server copy
// wins and yields a ribbon naming who changed it; a newer local copy wins
// silently; an exact tie keeps the server copy without flagging a conflict.
package conflict
