package transport

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nocdem/dna-messenger-sub010/internal/bus"
	"github.com/nocdem/dna-messenger-sub010/internal/config"
	"github.com/nocdem/dna-messenger-sub010/internal/conn"
	"github.com/opd-ai/toxcore"
	"go.uber.org/zap"
)

// Adapter wraps the Tox instance and manages the DHT connection. It drives
// the conn machine from connection callbacks and publishes inbound messages
// on the bus; the ingest engine subscribes independently.
type Adapter struct {
	tox      *toxcore.Tox
	bus      *bus.Bus
	machine  *conn.Machine
	logger   *zap.Logger
	savePath string
	nodes    []config.BootstrapNode

	mu    sync.Mutex
	names map[uint32]string // friend id -> last announced display name

	done     chan struct{}
	loopDone chan struct{}
}

// NewAdapter creates a Tox adapter for the given identity file, loading the
// persisted identity when one exists and generating a fresh one otherwise.
func NewAdapter(identityPath string, cfg *config.Config, machine *conn.Machine, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	opts := toxcore.NewOptions()
	opts.UDPEnabled = true

	if data, err := os.ReadFile(identityPath); err == nil && len(data) > 0 {
		opts.SavedataType = toxcore.SaveDataTypeToxSave
		opts.SavedataData = data
		opts.SavedataLength = uint32(len(data))
	}

	tox, err := toxcore.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create tox instance: %w", err)
	}

	a := &Adapter{
		tox:      tox,
		bus:      b,
		machine:  machine,
		logger:   logger,
		savePath: identityPath,
		nodes:    cfg.BootstrapNodes(),
		names:    make(map[uint32]string),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	tox.OnConnectionStatus(a.handleConnectionStatus)
	tox.OnFriendMessageDetailed(a.handleFriendMessage)
	tox.OnFriendName(a.handleFriendName)
	tox.OnFriendRequest(a.handleFriendRequest)

	return a, nil
}

// Start bootstraps into the DHT and begins the iterate loop.
func (a *Adapter) Start() error {
	if err := a.saveIdentity(); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}

	_ = a.machine.Transition(conn.Connecting)

	bootstrapped := 0
	for _, n := range a.nodes {
		if err := a.tox.Bootstrap(n.Host, n.Port, n.PublicKey); err != nil {
			a.logger.Warn("bootstrap node rejected",
				zap.String("host", n.Host),
				zap.Error(err))
			continue
		}
		bootstrapped++
	}
	if bootstrapped == 0 {
		a.logger.Warn("no bootstrap node accepted, staying offline until one does")
	}
	a.logger.Info("transport starting",
		zap.String("address", a.tox.SelfGetAddress()),
		zap.Int("bootstrap_nodes", bootstrapped))

	go a.loop()
	return nil
}

// Stop ends the iterate loop, persists the identity and releases the Tox
// instance.
func (a *Adapter) Stop() {
	close(a.done)
	<-a.loopDone

	if err := a.saveIdentity(); err != nil {
		a.logger.Warn("persist identity on shutdown", zap.Error(err))
	}
	a.tox.Kill()
	a.logger.Info("transport stopped")
}

// loop pumps the Tox event loop until Stop is called.
func (a *Adapter) loop() {
	defer close(a.loopDone)
	for {
		select {
		case <-a.done:
			return
		default:
		}
		a.tox.Iterate()
		select {
		case <-a.done:
			return
		case <-time.After(a.tox.IterationInterval()):
		}
	}
}

// Ready reports whether the transport currently has a live network session.
func (a *Adapter) Ready() bool {
	return a.tox.IsRunning() && a.tox.SelfGetConnectionStatus() != toxcore.ConnectionNone
}

// SelfAddress returns this profile's full Tox address for sharing.
func (a *Adapter) SelfAddress() string {
	return a.tox.SelfGetAddress()
}

// SelfName returns the identity's display name, stamped on outgoing
// messages. Unnamed identities fall back to a shortened address.
func (a *Adapter) SelfName() string {
	return displaySelfName(a.tox.SelfGetName(), a.tox.SelfGetAddress())
}

func displaySelfName(name, address string) string {
	if name != "" {
		return name
	}
	return shortFingerprint(address)
}

// Send delivers content to each recipient fingerprint.
func (a *Adapter) Send(ctx context.Context, recipients []string, content string) error {
	for _, fp := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		friendID, err := a.friendID(fp)
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
		if _, err := a.tox.FriendSendMessage(friendID, content, toxcore.MessageTypeNormal); err != nil {
			return fmt.Errorf("send to %s: %w", shortFingerprint(fp), err)
		}
	}
	return nil
}

// SendGroup delivers content to a group conversation.
func (a *Adapter) SendGroup(ctx context.Context, groupID string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conferenceID, err := parseGroupID(groupID)
	if err != nil {
		return err
	}
	if err := a.tox.ConferenceSendMessage(conferenceID, content, toxcore.MessageTypeNormal); err != nil {
		return fmt.Errorf("send to group %s: %w", groupID, err)
	}
	return nil
}

// friendID resolves a contact fingerprint to the Tox friend number.
func (a *Adapter) friendID(fingerprint string) (uint32, error) {
	pk, err := decodeFingerprint(fingerprint)
	if err != nil {
		return 0, err
	}
	return a.tox.GetFriendByPublicKey(pk)
}

func (a *Adapter) handleConnectionStatus(st toxcore.ConnectionStatus) {
	if next, ok := nextConnState(a.machine.Current(), st); ok {
		_ = a.machine.Transition(next)
	}
	a.bus.Publish(bus.Event{
		Kind:      bus.KindTransportStatus,
		Timestamp: time.Now(),
		Payload:   statusLabel(st),
	})
	a.logger.Info("transport connection status", zap.String("status", statusLabel(st)))
}

func (a *Adapter) handleFriendMessage(friendID uint32, message string, messageType toxcore.MessageType) {
	pk, err := a.tox.GetFriendPublicKey(friendID)
	if err != nil {
		a.logger.Warn("message from unknown friend id", zap.Uint32("friend_id", friendID))
		return
	}
	fp := hex.EncodeToString(pk[:])
	a.bus.Publish(bus.Event{
		Kind:      bus.KindTransportMessage,
		Timestamp: time.Now(),
		Payload: Inbound{
			Conversation: fp,
			Sender:       a.displayName(friendID, fp),
			Content:      message,
			Action:       messageType == toxcore.MessageTypeAction,
		},
	})
}

func (a *Adapter) handleFriendName(friendID uint32, name string) {
	a.mu.Lock()
	a.names[friendID] = name
	a.mu.Unlock()
}

// handleFriendRequest accepts every request. Contact policy lives in the
// frontends; the engine just makes the peer sendable.
func (a *Adapter) handleFriendRequest(pk [32]byte, message string) {
	friendID, err := a.tox.AddFriendByPublicKey(pk)
	if err != nil {
		a.logger.Warn("accept friend request", zap.Error(err))
		return
	}
	a.logger.Info("friend request accepted",
		zap.String("fingerprint", shortFingerprint(hex.EncodeToString(pk[:]))),
		zap.Uint32("friend_id", friendID),
		zap.String("greeting", message))
}

func (a *Adapter) displayName(friendID uint32, fingerprint string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name := a.names[friendID]; name != "" {
		return name
	}
	return fingerprint
}

func (a *Adapter) saveIdentity() error {
	data := a.tox.GetSavedata()
	if len(data) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.savePath), 0700); err != nil {
		return err
	}
	return os.WriteFile(a.savePath, data, 0600)
}

// nextConnState maps a Tox connection status onto the conn machine, given
// its current state. Returns false when no transition should happen.
func nextConnState(current conn.State, st toxcore.ConnectionStatus) (conn.State, bool) {
	if st == toxcore.ConnectionNone {
		if current == conn.Online {
			return conn.Reconnecting, true
		}
		return "", false
	}
	switch current {
	case conn.Connecting, conn.Reconnecting:
		return conn.Online, true
	}
	return "", false
}

func statusLabel(st toxcore.ConnectionStatus) string {
	switch st {
	case toxcore.ConnectionTCP:
		return "tcp"
	case toxcore.ConnectionUDP:
		return "udp"
	default:
		return "none"
	}
}

// decodeFingerprint parses a 64 hex digit contact fingerprint (the Tox
// public key) into its raw form.
func decodeFingerprint(fingerprint string) ([32]byte, error) {
	var pk [32]byte
	raw, err := hex.DecodeString(fingerprint)
	if err != nil {
		return pk, fmt.Errorf("fingerprint %q is not hex", shortFingerprint(fingerprint))
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("fingerprint %q has %d bytes, want %d", shortFingerprint(fingerprint), len(raw), len(pk))
	}
	copy(pk[:], raw)
	return pk, nil
}

// parseGroupID parses the decimal conference number used as the group
// conversation id.
func parseGroupID(groupID string) (uint32, error) {
	n, err := strconv.ParseUint(groupID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("group id %q is not a conference number", groupID)
	}
	return uint32(n), nil
}

func shortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12] + "..."
}
