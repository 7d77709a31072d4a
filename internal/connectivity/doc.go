// Package connectivity tracks whether the remote authority is reachable and
// reports offline to online transitions.
//
// Reachability is decided by a health probe that runs on an interval and
// immediately after the kernel announces a network interface change over
// udev netlink. Netlink is optional: without permission to open the socket
// the monitor falls back to interval probing.
package connectivity
