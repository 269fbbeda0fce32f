// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var bareMAC = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// openTransport builds a transport from the --device flag (or the
// configured device). It does not connect; the session owns that.
func openTransport() (rk6006.Transport, string, error) {
	dev := deviceString
	if dev == "" {
		return nil, "", fmt.Errorf("no device specified: use --device or set device in %s", configPath)
	}

	switch {
	case dev == "sim:" || dev == "sim":
		return rk6006.NewSim(), "Simulated RK6006", nil

	case strings.HasPrefix(dev, "ble:"):
		addr := strings.ToUpper(strings.TrimPrefix(dev, "ble:"))
		if !bareMAC.MatchString(addr) {
			return nil, "", fmt.Errorf("invalid BLE address %q (want AA:BB:CC:DD:EE:FF)", addr)
		}
		return newBLETransport(addr), fmt.Sprintf("BLE %s", addr), nil

	case bareMAC.MatchString(dev):
		addr := strings.ToUpper(dev)
		return newBLETransport(addr), fmt.Sprintf("BLE %s", addr), nil

	case strings.HasPrefix(dev, "serial:"):
		port := strings.TrimPrefix(dev, "serial:")
		if port == "" {
			return nil, "", fmt.Errorf("empty serial port in device string %q", dev)
		}
		return newSerialTransport(port, baudRate), fmt.Sprintf("Serial %s @ %d baud", port, baudRate), nil

	case strings.HasPrefix(dev, "ws://"), strings.HasPrefix(dev, "wss://"):
		return newWSTransport(dev, wsUsername, wsNoSSLVerify), fmt.Sprintf("WebSocket %s", dev), nil

	default:
		return nil, "", fmt.Errorf("unrecognized device %q (want ble:MAC, serial:/dev/..., ws://host/path, or sim:)", dev)
	}
}

// openSession wraps a transport built from the flags in a session. The
// caller owns the session and must Close it.
func openSession() (*rk6006.Session, string, error) {
	tr, info, err := openTransport()
	if err != nil {
		return nil, "", err
	}
	cfg, err := sessionConfig(logger)
	if err != nil {
		return nil, "", err
	}
	return rk6006.NewSession(tr, cfg), info, nil
}

// openController builds the full stack: transport, session, controller
// with the config-file flag store.
func openController() (*rk6006.Controller, *rk6006.Session, string, error) {
	sess, info, err := openSession()
	if err != nil {
		return nil, nil, "", err
	}
	ctrl := rk6006.NewController(sess, newFlagStore(), logger)
	return ctrl, sess, info, nil
}

// withController runs a one-shot operation against a connected
// controller and tears the stack down afterwards.
func withController(fn func(ctx context.Context, ctrl *rk6006.Controller) error) error {
	ctrl, sess, _, err := openController()
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := opContext()
	defer cancel()

	if err := ctrl.Connect(ctx); err != nil {
		return err
	}
	defer ctrl.Disconnect()

	return fn(ctx, ctrl)
}

// opContext bounds a one-shot command: canceled by Ctrl+C, capped at
// a ceiling generous enough for a BLE scan plus a full refresh.
func opContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	return ctx, func() {
		cancel()
		stop()
	}
}

func sessionConfig(log *slog.Logger) (rk6006.Config, error) {
	policy, err := parseQueuePolicy(queuePolicy)
	if err != nil {
		return rk6006.Config{}, err
	}
	return rk6006.Config{
		Timeout:     reqTimeout,
		Retries:     reqRetries,
		QueuePolicy: policy,
		Logger:      log,
	}, nil
}

func parseQueuePolicy(s string) (rk6006.QueuePolicy, error) {
	switch strings.ToLower(s) {
	case "wait", "":
		return rk6006.QueueWait, nil
	case "reject":
		return rk6006.QueueReject, nil
	default:
		return 0, fmt.Errorf("unknown queue policy %q (want wait or reject)", s)
	}
}

// serialTransport drives the supply over a USB-serial adapter wired to
// the UART pads. A reader goroutine feeds the notification channel and
// closes it when the port dies, which is how the session learns the
// link is gone.
type serialTransport struct {
	portName string
	baud     int

	mu        sync.Mutex
	port      serial.Port
	notes     chan []byte
	connected bool
}

func newSerialTransport(portName string, baud int) *serialTransport {
	return &serialTransport{portName: portName, baud: baud}
}

func (t *serialTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mode := &serial.Mode{
		BaudRate: t.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.portName, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", t.portName, err)
	}

	notes := make(chan []byte, 32)
	t.mu.Lock()
	t.port = port
	t.notes = notes
	t.connected = true
	t.mu.Unlock()

	go func() {
		defer close(notes)
		buf := make([]byte, 256)
		for {
			n, err := port.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			notes <- data
		}
	}()
	return nil
}

func (t *serialTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	// Closing the port errors the blocked Read, which closes notes.
	return t.port.Close()
}

func (t *serialTransport) Send(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return rk6006.ErrConnectionLost
	}
	n, err := t.port.Write(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return io.ErrShortWrite
	}
	return nil
}

func (t *serialTransport) Notifications() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notes
}

func (t *serialTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *serialTransport) String() string {
	return fmt.Sprintf("serial:%s@%d", t.portName, t.baud)
}

// wsTransport talks to a WebSocket-to-serial bridge. Frames travel as
// binary messages; text messages are ignored.
type wsTransport struct {
	url           string
	username      string
	skipSSLVerify bool

	mu        sync.Mutex
	conn      *websocket.Conn
	notes     chan []byte
	connected bool
}

func newWSTransport(wsURL, username string, skipSSLVerify bool) *wsTransport {
	return &wsTransport{url: wsURL, username: username, skipSSLVerify: skipSSLVerify}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	u, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: t.skipSSLVerify,
		}
	}

	headers := http.Header{}
	if t.username != "" {
		password, err := getPassword()
		if err != nil {
			return err
		}
		credentials := base64.StdEncoding.EncodeToString([]byte(t.username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, t.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection failed: %w", err)
	}

	notes := make(chan []byte, 32)
	t.mu.Lock()
	t.conn = conn
	t.notes = notes
	t.connected = true
	t.mu.Unlock()

	go func() {
		defer close(notes)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			notes <- data
		}
	}()
	return nil
}

func (t *wsTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	return t.conn.Close()
}

func (t *wsTransport) Send(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return rk6006.ErrConnectionLost
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (t *wsTransport) Notifications() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notes
}

func (t *wsTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *wsTransport) String() string {
	return "ws:" + t.url
}

// getPassword retrieves the bridge password from the environment or
// prompts for it
func getPassword() (string, error) {
	if pw := os.Getenv("RKCTL_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
