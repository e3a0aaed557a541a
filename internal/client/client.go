// Package client talks to a running promptd over its control socket.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/coolftc/prompt/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultTimeout bounds one control call.
const DefaultTimeout = 30 * time.Second

// Client is a typed wrapper over the Control service.
type Client struct {
	conn    grpc.ClientConnInterface
	closeFn func() error
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{conn: conn, closeFn: conn.Close}, nil
}

// New wraps an existing connection. Close does not close conn.
func New(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, api.FullMethod(method), in, out)
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodStatus, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Ping returns the service version seen by the daemon.
func (c *Client) Ping(ctx context.Context) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, api.MethodPing, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) Refresh(ctx context.Context, force bool) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodRefresh, wrapperspb.Bool(force), out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Friends lists cached friends, or those matching term when it is set.
func (c *Client) Friends(ctx context.Context, term string) ([]map[string]any, error) {
	out := new(structpb.Struct)
	var err error
	if term == "" {
		err = c.invoke(ctx, api.MethodListFriends, &emptypb.Empty{}, out)
	} else {
		err = c.invoke(ctx, api.MethodSearchFriends, wrapperspb.String(term), out)
	}
	if err != nil {
		return nil, err
	}
	return items(out, "friends"), nil
}

func (c *Client) Invite(ctx context.Context, unique, display, message string, mirror bool) error {
	in, err := structpb.NewStruct(map[string]any{
		"unique":  unique,
		"display": display,
		"message": message,
		"mirror":  mirror,
	})
	if err != nil {
		return err
	}
	return c.invoke(ctx, api.MethodInviteFriend, in, new(emptypb.Empty))
}

func (c *Client) Unfriend(ctx context.Context, acctID int64) error {
	return c.invoke(ctx, api.MethodRemoveFriend, wrapperspb.Int64(acctID), new(emptypb.Empty))
}

func (c *Client) Prompts(ctx context.Context, term string) ([]map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodListPrompts, wrapperspb.String(term), out); err != nil {
		return nil, err
	}
	return items(out, "prompts"), nil
}

// Send submits a SendPrompt request built by the caller.
func (c *Client) Send(ctx context.Context, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodSendPrompt, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Cancel(ctx context.Context, localID int64) error {
	return c.invoke(ctx, api.MethodCancelPrompt, wrapperspb.Int64(localID), new(emptypb.Empty))
}

func (c *Client) Snooze(ctx context.Context, serverID int64) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodSnoozePrompt, wrapperspb.Int64(serverID), out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Push(ctx context.Context, payload map[string]string) (map[string]any, error) {
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		fields[k] = v
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodDeliverPush, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Export returns the iCalendar feed of upcoming prompts.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.invoke(ctx, api.MethodExportCalendar, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Occurrences lists delivery times of a prompt between from and to.
// Empty bounds and a zero limit use the daemon defaults.
func (c *Client) Occurrences(ctx context.Context, localID int64, from, to string, limit int) ([]string, error) {
	in, err := structpb.NewStruct(map[string]any{"id": localID, "from": from, "to": to, "max": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, api.MethodOccurrences, in, out); err != nil {
		return nil, err
	}
	var times []string
	for _, v := range out.GetFields()["times"].GetListValue().GetValues() {
		times = append(times, v.GetStringValue())
	}
	return times, nil
}

func items(s *structpb.Struct, key string) []map[string]any {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStructValue().AsMap())
	}
	return out
}
