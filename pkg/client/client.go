package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
)

// SocketClient talks to the daemon over its control socket
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SetTimeout changes the per-command connect and I/O timeout
func (c *SocketClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SendCommand sends a command and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// call sends cmd and decodes Data[key] into out
func (c *SocketClient) call(cmd, key string, out interface{}) error {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s error: %s", cmd, resp.Error)
	}

	value, ok := resp.Data[key]
	if !ok {
		return fmt.Errorf("%s not found in response", key)
	}

	// Round-trip through JSON to get typed values
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return nil
}

// GetStatus gets the current station status
func (c *SocketClient) GetStatus() (*protocol.Status, error) {
	var status protocol.Status
	if err := c.call(protocol.CmdStatus, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetBands returns the band table, or a single entry when code >= 0
func (c *SocketClient) GetBands(code int) ([]protocol.Band, error) {
	cmd := protocol.CmdBands
	if code >= 0 {
		cmd = fmt.Sprintf("%s:%d", protocol.CmdBands, code)
	}

	var bands []protocol.Band
	if err := c.call(cmd, "bands", &bands); err != nil {
		return nil, err
	}
	return bands, nil
}

// GetHistory gets recent band changes, newest first
func (c *SocketClient) GetHistory(limit int) ([]protocol.ChangeRecord, error) {
	cmd := protocol.CmdHistory
	if limit > 0 {
		cmd = fmt.Sprintf("%s:%d", protocol.CmdHistory, limit)
	}

	changes := []protocol.ChangeRecord{}
	if err := c.call(cmd, "changes", &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// GetStats gets the daemon counters
func (c *SocketClient) GetStats() (map[string]interface{}, error) {
	resp, err := c.SendCommand(protocol.CmdStats)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("stats error: %s", resp.Error)
	}

	return resp.Data, nil
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	resp, err := c.SendCommand(protocol.CmdPing)
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("ping error: %s", resp.Error)
	}

	return nil
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}
