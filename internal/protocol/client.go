// Package protocol implements the client side of the server list status exchange:
// varint framing, handshake with status intent, status request/response and ping/pong.
package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/models"
)

// Client performs status probes on already connected sockets.
type Client struct {
	// ProtocolVersion declared in the handshake
	ProtocolVersion int

	// Timeout bounds the whole exchange on one socket
	Timeout time.Duration

	// MaxPacketSize bounds the declared length of incoming frames
	MaxPacketSize int
}

// New creates a status client with the default frame size limit.
func New(protocolVersion int, timeout time.Duration) *Client {
	return &Client{
		ProtocolVersion: protocolVersion,
		Timeout:         timeout,
		MaxPacketSize:   DefaultMaxPacketSize,
	}
}

// Probe runs the status exchange against target t over conn.
func (c *Client) Probe(ctx context.Context, conn net.Conn, t models.Target) (models.Status, error) {
	st, err := probe(ctx, conn, c.ProtocolVersion, t.Addr.String(), t.Port, c.Timeout, c.MaxPacketSize)
	st.Target = t

	return st, err
}

// ProbeStatus performs handshake, status request and ping on an open socket.
// The socket is not closed. Every failure wraps one of the protocol errors.
func ProbeStatus(ctx context.Context, conn net.Conn, protocolVersion int, host string, port uint16, timeout time.Duration) (models.Status, error) {
	return probe(ctx, conn, protocolVersion, host, port, timeout, DefaultMaxPacketSize)
}

type statusResponse struct {
	Description json.RawMessage `json:"description"`
	Version     struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
}

func probe(ctx context.Context, conn net.Conn, protocolVersion int, host string, port uint16, timeout time.Duration, maxSize int) (models.Status, error) {
	var st models.Status

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return st, wrap(ErrConnectionClosed, err)
	}

	// Cancellation forces every pending read or write to fail with a timeout.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	start := time.Now()

	request := append(Handshake(protocolVersion, host, port), StatusRequest()...)
	if _, err := conn.Write(request); err != nil {
		return st, transportError(err, false)
	}

	r := bufio.NewReader(conn)
	pkt, err := ReadPacket(r, maxSize)
	if err != nil {
		return st, err
	}
	if pkt.ID != PacketStatus {
		return st, fmt.Errorf("%w: got 0x%02x want 0x%02x", ErrUnexpectedPacketID, pkt.ID, PacketStatus)
	}

	payload, _, err := ReadString(pkt.Data)
	if err != nil {
		return st, err
	}

	var resp statusResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return st, wrap(ErrJSONDecode, err)
	}

	st = models.Status{
		ProtocolVersion: resp.Version.Protocol,
		VersionName:     NormalizeText(resp.Version.Name),
		OnlinePlayers:   resp.Players.Online,
		MaxPlayers:      resp.Players.Max,
		Description:     Description(resp.Description),
		LatencyMs:       time.Since(start).Milliseconds(),
	}

	// Latency falls back to the status round-trip when the ping step fails.
	rtt, err := ping(conn, r, maxSize)
	if err != nil {
		log.Trace().
			Err(err).
			Str("host", host).
			Uint16("port", port).
			Msg("Ping failed, using status round-trip")
		return st, nil
	}
	st.LatencyMs = rtt.Milliseconds()

	return st, nil
}

func ping(conn net.Conn, r *bufio.Reader, maxSize int) (time.Duration, error) {
	start := time.Now()
	payload := start.UnixMilli()

	if _, err := conn.Write(Ping(payload)); err != nil {
		return 0, transportError(err, false)
	}

	pkt, err := ReadPacket(r, maxSize)
	if err != nil {
		return 0, err
	}
	if pkt.ID != PacketPing {
		return 0, fmt.Errorf("%w: got 0x%02x want 0x%02x", ErrUnexpectedPacketID, pkt.ID, PacketPing)
	}
	if len(pkt.Data) != 8 || int64(binary.BigEndian.Uint64(pkt.Data)) != payload {
		return 0, fmt.Errorf("%w: pong payload mismatch", ErrMalformedFrame)
	}

	return time.Since(start), nil
}
