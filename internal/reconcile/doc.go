// Package reconcile folds server copies of tasks and notifications into the
// local cache. When a cached entity carries an unsynced local edit the two
// copies go through the conflict resolver; a server overwrite leaves a
// ribbon on the cached entity until the user dismisses it.
package reconcile
