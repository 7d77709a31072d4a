package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req any, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// QueueList returns queue items optionally filtered by kinds and statuses.
func (c *Client) QueueList(kinds, statuses []string) (*QueueListResponse, error) {
	return call[QueueListRequest, QueueListResponse](c, "QueueList", QueueListRequest{Kinds: kinds, Statuses: statuses})
}

// QueueRetry requeues failed items of one kind.
func (c *Client) QueueRetry(kind string, ids []int64) (*QueueRetryResponse, error) {
	return call[QueueRetryRequest, QueueRetryResponse](c, "QueueRetry", QueueRetryRequest{Kind: kind, IDs: ids})
}

// QueueDiscard deletes items of one kind.
func (c *Client) QueueDiscard(kind string, ids []int64, force bool) (*QueueDiscardResponse, error) {
	return call[QueueDiscardRequest, QueueDiscardResponse](c, "QueueDiscard", QueueDiscardRequest{Kind: kind, IDs: ids, Force: force})
}

// QueueClearFailed removes failed items of the given kinds.
func (c *Client) QueueClearFailed(kinds []string) (*QueueClearFailedResponse, error) {
	return call[QueueClearFailedRequest, QueueClearFailedResponse](c, "QueueClearFailed", QueueClearFailedRequest{Kinds: kinds})
}

// Enqueue stores a new queue item.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	return call[EnqueueRequest, EnqueueResponse](c, "Enqueue", req)
}

// SyncNow asks for a manual sync.
func (c *Client) SyncNow() (*SyncNowResponse, error) {
	return call[SyncNowRequest, SyncNowResponse](c, "SyncNow", SyncNowRequest{})
}

// Ribbons lists undismissed ribbons.
func (c *Client) Ribbons() (*RibbonsResponse, error) {
	return call[RibbonsRequest, RibbonsResponse](c, "Ribbons", RibbonsRequest{})
}

// DismissRibbon clears one ribbon.
func (c *Client) DismissRibbon(collection, id string) (*DismissRibbonResponse, error) {
	return call[DismissRibbonRequest, DismissRibbonResponse](c, "DismissRibbon", DismissRibbonRequest{Collection: collection, ID: id})
}

// Refresh pulls server copies of one cache.
func (c *Client) Refresh(collection string) (*RefreshResponse, error) {
	return call[RefreshRequest, RefreshResponse](c, "Refresh", RefreshRequest{Collection: collection})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
