package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"

	"github.com/google/uuid"
	pool "github.com/libp2p/go-buffer-pool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	frameHeaderSize  = 8 // uint32 tag + uint32 float count
	sendQueueDepth   = 256
	writeBufferSize  = 1 << 16
	readBufferSize   = 1 << 16
	handshakeRankLen = 4 + 16 // uint32 rank + session uuid
)

// TCP is a full-mesh transport: one connection per peer rank, frames
// carrying (tag, payload) demultiplexed on arrival against posted
// receives. Frames are big-endian: uint32 tag, uint32 count, count
// float64 words. A frame arriving before its receive is posted is
// parked until the receive shows up, so message order on the wire never
// matters.
type TCP struct {
	rank    int
	size    int
	session uuid.UUID
	log     zerolog.Logger

	ln    net.Listener
	peers map[int]*peerConn

	mu      sync.Mutex
	recvs   map[matchKey]*tcpRecvRequest
	arrived map[matchKey][][]float64
	closed  bool
}

type peerConn struct {
	rank int
	conn net.Conn
	out  chan *tcpSendRequest
}

// NewTCP starts listening for peer connections. listenAddr may use port
// 0; ListenAddr reports the bound address for peer exchange.
func NewTCP(rank, size int, listenAddr string, log zerolog.Logger) (*TCP, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("tcp transport: listen %s: %w", listenAddr, err)
	}
	t := &TCP{
		rank:    rank,
		size:    size,
		session: uuid.New(),
		log:     log.With().Int("rank", rank).Logger(),
		ln:      ln,
		peers:   make(map[int]*peerConn),
		recvs:   make(map[matchKey]*tcpRecvRequest),
		arrived: make(map[matchKey][][]float64),
	}
	t.log.Info().Str("addr", ln.Addr().String()).
		Str("session", t.session.String()).Msg("tcp transport listening")
	return t, nil
}

func (t *TCP) Rank() int          { return t.rank }
func (t *TCP) Size() int          { return t.size }
func (t *TCP) ListenAddr() string { return t.ln.Addr().String() }
func (t *TCP) Session() uuid.UUID { return t.session }

// Connect establishes the full mesh: this rank dials every peer with a
// higher rank and accepts from every peer with a lower one. addrs maps
// peer rank to listen address; it only needs entries for dialed peers.
// Connect blocks until all size-1 connections are up.
func (t *TCP) Connect(addrs map[int]string) error {
	var eg errgroup.Group

	nAccept := t.rank // lower ranks dial us
	eg.Go(func() error {
		for a := 0; a < nAccept; a++ {
			conn, err := t.ln.Accept()
			if err != nil {
				return fmt.Errorf("tcp transport: accept: %w", err)
			}
			peer, sess, err := readHandshake(conn)
			if err != nil {
				conn.Close()
				return err
			}
			t.log.Info().Int("peer", peer).Str("session", sess.String()).
				Msg("accepted peer connection")
			t.addPeer(peer, conn)
		}
		return nil
	})

	for r := t.rank + 1; r < t.size; r++ {
		r := r
		eg.Go(func() error {
			addr, ok := addrs[r]
			if !ok {
				return fmt.Errorf("tcp transport: no address for rank %d", r)
			}
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return fmt.Errorf("tcp transport: dial rank %d at %s: %w", r, addr, err)
			}
			if err = writeHandshake(conn, t.rank, t.session); err != nil {
				conn.Close()
				return err
			}
			t.log.Info().Int("peer", r).Str("addr", addr).Msg("connected to peer")
			t.addPeer(r, conn)
			return nil
		})
	}
	return eg.Wait()
}

func (t *TCP) addPeer(rank int, conn net.Conn) {
	p := &peerConn{
		rank: rank,
		conn: conn,
		out:  make(chan *tcpSendRequest, sendQueueDepth),
	}
	t.mu.Lock()
	t.peers[rank] = p
	t.mu.Unlock()
	go t.writeLoop(p)
	go t.readLoop(p)
}

// Close tears down all connections. Outstanding receives complete with
// an error.
func (t *TCP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	peers := make([]*peerConn, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	err := t.ln.Close()
	for _, p := range peers {
		p.conn.Close()
		close(p.out)
	}
	return err
}

func (t *TCP) Isend(rank, tag int, data []float64) (Request, error) {
	t.mu.Lock()
	p, ok := t.peers[rank]
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("tcp transport: closed")
	}
	if !ok {
		return nil, fmt.Errorf("tcp transport: not connected to rank %d", rank)
	}

	frame := pool.Get(frameHeaderSize + 8*len(data))
	binary.BigEndian.PutUint32(frame[0:4], uint32(tag))
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(data)))
	for i, f := range data {
		binary.BigEndian.PutUint64(frame[frameHeaderSize+8*i:], math.Float64bits(f))
	}

	req := &tcpSendRequest{frame: frame, done: make(chan struct{})}
	select {
	case p.out <- req:
		return req, nil
	default:
		pool.Put(frame)
		return nil, fmt.Errorf("tcp transport: send queue full for rank %d", rank)
	}
}

func (t *TCP) Irecv(rank, tag int, buf []float64) (Request, error) {
	key := matchKey{src: rank, dst: t.rank, tag: tag}
	req := &tcpRecvRequest{buf: buf, done: make(chan struct{})}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("tcp transport: closed")
	}
	if q, ok := t.arrived[key]; ok {
		req.complete(q[0], nil)
		if len(q) == 1 {
			delete(t.arrived, key)
		} else {
			t.arrived[key] = q[1:]
		}
		return req, nil
	}
	if _, ok := t.recvs[key]; ok {
		return nil, fmt.Errorf("tcp transport: duplicate recv for tag %d from rank %d", tag, rank)
	}
	t.recvs[key] = req
	return req, nil
}

func (t *TCP) writeLoop(p *peerConn) {
	bw := bufio.NewWriterSize(p.conn, writeBufferSize)
	for req := range p.out {
		_, err := bw.Write(req.frame)
		if err == nil {
			// flush eagerly unless more frames are queued
			if len(p.out) == 0 {
				err = bw.Flush()
			}
		}
		pool.Put(req.frame)
		req.frame = nil
		req.complete(err)
		if err != nil {
			t.log.Error().Err(err).Int("peer", p.rank).Msg("tcp write failed")
		}
	}
}

func (t *TCP) readLoop(p *peerConn) {
	br := bufio.NewReaderSize(p.conn, readBufferSize)
	hdr := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(br, hdr); err != nil {
			t.failPeerRecvs(p.rank, err)
			return
		}
		tag := int(binary.BigEndian.Uint32(hdr[0:4]))
		count := int(binary.BigEndian.Uint32(hdr[4:8]))
		body := pool.Get(8 * count)
		if _, err := io.ReadFull(br, body); err != nil {
			pool.Put(body)
			t.failPeerRecvs(p.rank, err)
			return
		}
		payload := make([]float64, count)
		for i := range payload {
			payload[i] = math.Float64frombits(binary.BigEndian.Uint64(body[8*i:]))
		}
		pool.Put(body)
		t.deliver(p.rank, tag, payload)
	}
}

func (t *TCP) deliver(src, tag int, payload []float64) {
	key := matchKey{src: src, dst: t.rank, tag: tag}
	t.mu.Lock()
	defer t.mu.Unlock()
	if req, ok := t.recvs[key]; ok {
		delete(t.recvs, key)
		req.complete(payload, nil)
		return
	}
	// a sender may run a cycle ahead of the receiver re-posting the
	// same tag, so park arrivals in wire order
	t.arrived[key] = append(t.arrived[key], payload)
}

// failPeerRecvs completes every posted receive from a dead peer with
// the connection error, so Clear cannot hang on a lost rank.
func (t *TCP) failPeerRecvs(rank int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		err = fmt.Errorf("tcp transport: closed")
	} else {
		t.log.Error().Err(err).Int("peer", rank).Msg("tcp read failed")
	}
	for key, req := range t.recvs {
		if key.src == rank {
			delete(t.recvs, key)
			req.complete(nil, fmt.Errorf("tcp transport: connection to rank %d lost: %w", rank, err))
		}
	}
}

func writeHandshake(conn net.Conn, rank int, session uuid.UUID) error {
	var hs [handshakeRankLen]byte
	binary.BigEndian.PutUint32(hs[0:4], uint32(rank))
	copy(hs[4:], session[:])
	if _, err := conn.Write(hs[:]); err != nil {
		return fmt.Errorf("tcp transport: handshake write: %w", err)
	}
	return nil
}

func readHandshake(conn net.Conn) (int, uuid.UUID, error) {
	var hs [handshakeRankLen]byte
	if _, err := io.ReadFull(conn, hs[:]); err != nil {
		return 0, uuid.Nil, fmt.Errorf("tcp transport: handshake read: %w", err)
	}
	var sess uuid.UUID
	copy(sess[:], hs[4:])
	return int(binary.BigEndian.Uint32(hs[0:4])), sess, nil
}

type tcpSendRequest struct {
	frame []byte
	done  chan struct{}
	err   error
}

func (r *tcpSendRequest) complete(err error) {
	r.err = err
	close(r.done)
}

func (r *tcpSendRequest) Test() (bool, error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}

func (r *tcpSendRequest) Wait() error {
	<-r.done
	return r.err
}

type tcpRecvRequest struct {
	buf  []float64
	done chan struct{}
	err  error
}

func (r *tcpRecvRequest) complete(payload []float64, err error) {
	if err == nil {
		if len(payload) != len(r.buf) {
			err = fmt.Errorf("tcp transport: payload size %d does not match posted buffer %d",
				len(payload), len(r.buf))
		} else {
			copy(r.buf, payload)
		}
	}
	r.err = err
	close(r.done)
}

func (r *tcpRecvRequest) Test() (bool, error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}

func (r *tcpRecvRequest) Wait() error {
	<-r.done
	return r.err
}
