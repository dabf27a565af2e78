// Package manager runs diskctl operations against the disk-manager
// daemon. Every operation dials a fresh connection, sends one framed
// request and waits for one framed reply; the daemon serves
// connections one at a time, so holding one open would only block
// other clients.
package manager

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/diskwarden/diskwarden/pkg/api"
	"github.com/diskwarden/diskwarden/pkg/diskctl/cmdparser/definitions"
	"github.com/diskwarden/diskwarden/pkg/utils"
)

// ErrNoReply reports a request the daemon decided not to answer. The
// daemon stays silent on undecodable, unauthenticated and malformed
// requests, so from the outside they all look the same: a read that
// times out.
var ErrNoReply = errors.New("no response from server (request dropped)")

// Client issues operations to one daemon endpoint.
type Client struct {
	network string
	addr    string
	token   string
	timeout time.Duration
}

// NewClient builds a client from the global diskctl settings.
func NewClient() (*Client, error) {
	network, addr, err := utils.ParseEndpoint(definitions.Server)
	if err != nil {
		return nil, err
	}
	return &Client{
		network: strings.ToLower(network),
		addr:    addr,
		token:   definitions.Token,
		timeout: definitions.Timeout,
	}, nil
}

// AddOptions carries the optional placement hints of an add request.
type AddOptions struct {
	Device           string
	OsdID            *uint64
	Journal          string
	JournalPartition *uint32
}

// ListDisks fetches the daemon's view of the host disks.
func (c *Client) ListDisks() ([]api.Disk, error) {
	op := &api.Operation{OpType: api.OpList, Token: c.token}
	reply, err := c.roundTrip(op.Marshal())
	if err != nil {
		return nil, err
	}
	// A failed enumeration comes back as a plain result. Its status
	// field is a varint the disk listing can never carry, so trying
	// the result shape first is unambiguous.
	if res, rerr := api.UnmarshalOpResult(reply); rerr == nil {
		return nil, fmt.Errorf("server: %s", res.GetErrorMsg())
	}
	disks, err := api.UnmarshalDisks(reply)
	if err != nil {
		return nil, fmt.Errorf("decode reply: %v", err)
	}
	return disks.Disk, nil
}

// AddDisk asks the daemon to hand a device over to the storage
// backend.
func (c *Client) AddDisk(opts AddOptions) error {
	op := &api.Operation{
		OpType:              api.OpAdd,
		Disk:                api.String(opts.Device),
		Token:               c.token,
		OsdID:               opts.OsdID,
		OsdJournalPartition: opts.JournalPartition,
	}
	if opts.Journal != "" {
		op.OsdJournal = api.String(opts.Journal)
	}
	return c.roundTripResult(op.Marshal())
}

// RemoveDisk asks the daemon to retire a device from the storage
// backend.
func (c *Client) RemoveDisk(device string) error {
	op := &api.Operation{
		OpType: api.OpRemove,
		Disk:   api.String(device),
		Token:  c.token,
	}
	return c.roundTripResult(op.Marshal())
}

// SafeToRemove asks whether a device can be pulled without data loss.
func (c *Client) SafeToRemove(device string) (bool, error) {
	op := &api.Operation{
		OpType: api.OpSafeToRemove,
		Disk:   api.String(device),
		Token:  c.token,
	}
	reply, err := c.roundTrip(op.Marshal())
	if err != nil {
		return false, err
	}
	res, err := api.UnmarshalOpBoolResult(reply)
	if err != nil {
		return false, fmt.Errorf("decode reply: %v", err)
	}
	if res.Result != api.ResultOK {
		return false, fmt.Errorf("server: %s", res.GetErrorMsg())
	}
	return res.GetValue(), nil
}

// roundTripResult runs a request whose reply is a plain result and
// turns an ERR status into an error.
func (c *Client) roundTripResult(payload []byte) error {
	reply, err := c.roundTrip(payload)
	if err != nil {
		return err
	}
	res, err := api.UnmarshalOpResult(reply)
	if err != nil {
		return fmt.Errorf("decode reply: %v", err)
	}
	if res.Result != api.ResultOK {
		return fmt.Errorf("server: %s", res.GetErrorMsg())
	}
	return nil
}

func (c *Client) roundTrip(payload []byte) ([]byte, error) {
	conn, err := net.DialTimeout(c.network, c.addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v", definitions.Server, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := api.WriteFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("send request: %v", err)
	}
	reply, err := api.ReadFrame(conn)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ErrNoReply
		}
		return nil, fmt.Errorf("read reply: %v", err)
	}
	return reply, nil
}
