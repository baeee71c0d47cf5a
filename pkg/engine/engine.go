package engine

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/bandtable"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
)

// HistorySource supplies finished band changes, newest first
type HistorySource interface {
	Recent(limit int) ([]protocol.ChangeRecord, error)
}

// defaultHistoryLimit applies to HISTORY without an argument
const defaultHistoryLimit = 20

// Server answers control socket commands against a Coordinator
type Server struct {
	coordinator *Coordinator
	history     HistorySource
	socketPath  string

	listener net.Listener
	running  bool
	mutex    sync.RWMutex
	wg       sync.WaitGroup
}

// NewServer creates a control socket server. A nil history falls back to
// the coordinator's in-memory history
func NewServer(coordinator *Coordinator, history HistorySource, socketPath string) *Server {
	if history == nil {
		history = coordinator
	}
	return &Server{
		coordinator: coordinator,
		history:     history,
		socketPath:  socketPath,
	}
}

// Start listens on the Unix socket
func (s *Server) Start() error {
	// Remove stale socket file
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	// Set socket permissions (readable/writable by owner and group)
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		logging.Warn("engine", "failed to set socket permissions", logging.Fields{"error": err})
	}

	s.mutex.Lock()
	s.listener = listener
	s.running = true
	s.mutex.Unlock()

	logging.Info("engine", "control socket listening", logging.Fields{"path": s.socketPath})

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Stop closes the listener and removes the socket file
func (s *Server) Stop() error {
	s.mutex.Lock()
	s.running = false
	listener := s.listener
	s.mutex.Unlock()

	if listener != nil {
		listener.Close()
	}
	s.wg.Wait()

	os.Remove(s.socketPath)
	return nil
}

func (s *Server) isRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// acceptConnections accepts and handles socket connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.isRunning() {
				return
			}
			logging.Warn("engine", "socket accept error", logging.Fields{"error": err})
			time.Sleep(100 * time.Millisecond)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection serves one client until QUIT or EOF
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		response := s.HandleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		if cmd.Type == protocol.CmdQuit {
			break
		}
	}
}

// HandleCommand processes a single command
func (s *Server) HandleCommand(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdStatus:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"status": s.coordinator.Status(),
		})

	case protocol.CmdBands:
		return s.handleBands(cmd)

	case protocol.CmdHistory:
		limit := cmd.IntArg("limit", defaultHistoryLimit)
		records, err := s.history.Recent(limit)
		if err != nil {
			return protocol.NewErrorResponse(fmt.Sprintf("history error: %v", err))
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"changes": records,
			"count":   len(records),
		})

	case protocol.CmdStats:
		status := s.coordinator.Status()
		return protocol.NewSuccessResponse(map[string]interface{}{
			"changes":      status.Changes,
			"failures":     status.Failures,
			"table_misses": status.TableMisses,
			"superseded":   status.Superseded,
			"reconnects":   status.Reconnects,
		})

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func (s *Server) handleBands(cmd *protocol.Command) *protocol.Response {
	table := s.coordinator.Table()

	if code := cmd.IntArg("code", -1); code >= 0 {
		entry, err := table.Lookup(code)
		if err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"bands": []protocol.Band{BandFromEntry(entry)},
		})
	}

	entries := table.Entries()
	bands := make([]protocol.Band, 0, len(entries))
	for _, e := range entries {
		bands = append(bands, BandFromEntry(e))
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"bands": bands,
	})
}

// BandFromEntry converts a table entry for clients
func BandFromEntry(e bandtable.BandEntry) protocol.Band {
	return protocol.Band{
		Code:           e.Code,
		Label:          e.Label,
		SwitchPosition: string(e.SwitchPosition),
		TuneSeconds:    e.TuneSeconds,
		TunerCommand:   e.TunerSetting(),
	}
}
