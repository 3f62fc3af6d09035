package actor

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codefionn/wifichat/internal/conn"
	"github.com/codefionn/wifichat/internal/routing"
	"github.com/codefionn/wifichat/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

type recordingUI struct {
	rows        chan wire.Row
	established atomic.Int32
	lost        atomic.Int32
}

func newRecordingUI() *recordingUI {
	return &recordingUI{rows: make(chan wire.Row, 16)}
}

func (u *recordingUI) OnMessageReceived(row wire.Row) { u.rows <- row }
func (u *recordingUI) OnConnectionEstablished()       { u.established.Add(1) }
func (u *recordingUI) OnConnectionLost()              { u.lost.Add(1) }

func (u *recordingUI) nextRow(t *testing.T) wire.Row {
	t.Helper()
	select {
	case row := <-u.rows:
		return row
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered to the UI")
		return wire.Row{}
	}
}

func spawnTestConnection(t *testing.T, opts ConnectionOptions) *ConnectionClient {
	t.Helper()
	if opts.DeviceName == "" {
		opts.DeviceName = "tester"
	}
	opts.ManagerOptions = append([]conn.Option{conn.WithPort(0), conn.WithDialTimeout(time.Second)}, opts.ManagerOptions...)

	sys := NewSystem()
	client, err := SpawnConnection(context.Background(), sys, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sys.StopAll(ctx)
	})
	return client
}

func waitStatus(t *testing.T, c *ConnectionClient, cond func(Status) bool) Status {
	t.Helper()
	var st Status
	waitFor(t, func() bool {
		var err error
		st, err = c.Status(context.Background())
		require.NoError(t, err)
		return cond(st)
	})
	return st
}

// dialServer connects a raw peer to a connection actor running as server
// and waits until the actor has registered it.
func dialServer(t *testing.T, c *ConnectionClient) net.Conn {
	t.Helper()
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(st.ListenAddr)
	require.NoError(t, err)

	peer, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", port))
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	want := len(st.Channels) + 1
	waitStatus(t, c, func(st Status) bool { return len(st.Channels) == want })
	return peer
}

func readEnvelope(t *testing.T, c net.Conn) wire.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 4096)
	n, err := c.Read(buf)
	require.NoError(t, err)
	env, err := wire.DecodeEnvelope(string(buf[:n]))
	require.NoError(t, err)
	return env
}

func writeEnvelope(t *testing.T, c net.Conn, env wire.Envelope) {
	t.Helper()
	_, err := c.Write([]byte(env.Encode()))
	require.NoError(t, err)
}

func chatFrom(t *testing.T, sender, body string) wire.Envelope {
	t.Helper()
	row, err := wire.NewRow(sender, body)
	require.NoError(t, err)
	return wire.NewChatEnvelope(row)
}

// joinRawServer starts the actor as client of a raw listener and returns the
// accepted peer after consuming the address announcement.
func joinRawServer(t *testing.T, c *ConnectionClient) (net.Conn, wire.Envelope) {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	require.NoError(t, c.StartClient(context.Background(), ln.Addr().String()))
	server, err := ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	announce := readEnvelope(t, server)
	waitStatus(t, c, func(st Status) bool { return st.Connected })
	return server, announce
}

func TestServerAcknowledgesAndDeliversChat(t *testing.T) {
	ui := newRecordingUI()
	c := spawnTestConnection(t, ConnectionOptions{UI: ui})
	require.NoError(t, c.StartServer(context.Background()))

	peer := dialServer(t, c)
	chat := chatFrom(t, "Y", "hi")
	writeEnvelope(t, peer, chat)

	ack := readEnvelope(t, peer)
	assert.Equal(t, wire.CategoryAck, ack.Category)
	assert.Equal(t, chat.AckID, ack.AckID)

	row := ui.nextRow(t)
	assert.Equal(t, "Y", row.Sender)
	assert.Equal(t, "hi", row.Body)
	assert.GreaterOrEqual(t, ui.established.Load(), int32(1))
}

func TestClientAckLifecycle(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{DeviceName: "Y", SelfAddress: "EE:FF"})
	server, announce := joinRawServer(t, c)

	assert.Equal(t, wire.CategoryMACAddress, announce.Category)
	assert.Equal(t, "EE:FF", announce.Body)

	first, err := c.SubmitOutgoingMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Reached)
	assert.False(t, first.Relayed)

	env := readEnvelope(t, server)
	require.Equal(t, wire.CategoryChat, env.Category)
	assert.Equal(t, first.AckID, env.AckID)
	row, err := env.Row()
	require.NoError(t, err)
	assert.Equal(t, "Y", row.Sender)
	assert.Equal(t, "hi", row.Body)

	second, err := c.SubmitOutgoingMessage(context.Background(), "again")
	require.NoError(t, err)
	readEnvelope(t, server)

	waitStatus(t, c, func(st Status) bool { return len(st.PendingAcks) == 2 })

	// Unknown ids are ignored, matching ids remove exactly one entry
	writeEnvelope(t, server, wire.NewAckEnvelope(first.AckID^1))
	time.Sleep(50 * time.Millisecond)
	writeEnvelope(t, server, wire.NewAckEnvelope(first.AckID))
	st := waitStatus(t, c, func(st Status) bool { return len(st.PendingAcks) == 1 })
	assert.Equal(t, second.AckID, st.PendingAcks[0].AckID)
}

func TestClientSettlesEchoedMessage(t *testing.T) {
	ui := newRecordingUI()
	c := spawnTestConnection(t, ConnectionOptions{DeviceName: "Y", UI: ui})
	server, _ := joinRawServer(t, c)

	res, err := c.SubmitOutgoingMessage(context.Background(), "hi")
	require.NoError(t, err)
	sent := readEnvelope(t, server)
	waitStatus(t, c, func(st Status) bool { return len(st.PendingAcks) == 1 })

	// The group owner fans a relayed copy back to its sender
	writeEnvelope(t, server, sent)

	ack := readEnvelope(t, server)
	assert.Equal(t, wire.CategoryAck, ack.Category)
	assert.Equal(t, res.AckID, ack.AckID)
	waitStatus(t, c, func(st Status) bool { return len(st.PendingAcks) == 0 })

	select {
	case row := <-ui.rows:
		t.Fatalf("own message delivered to the UI: %+v", row)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientMakesGroupOwnerEntryReachable(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{})
	server, _ := joinRawServer(t, c)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	owner := st.RemoteAddr
	require.NotEmpty(t, owner)

	writeEnvelope(t, server, wire.NewRosterEnvelope([]string{conn.UnspecifiedHost, "CC:DD"}))
	st = waitStatus(t, c, func(st Status) bool { return st.MultiHop })
	assert.Equal(t, []string{owner, "CC:DD"}, st.KnownPeers)
}

func TestMalformedInputDoesNotStopActor(t *testing.T) {
	ui := newRecordingUI()
	c := spawnTestConnection(t, ConnectionOptions{UI: ui})
	require.NoError(t, c.StartServer(context.Background()))
	peer := dialServer(t, c)

	_, err := peer.Write([]byte("notanumber#$#body"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	writeEnvelope(t, peer, chatFrom(t, "Y", "still alive"))
	assert.Equal(t, "still alive", ui.nextRow(t).Body)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Channels, 1)
}

func TestServerFanOutExcludesSender(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{})
	require.NoError(t, c.StartServer(context.Background()))

	a := dialServer(t, c)
	b := dialServer(t, c)
	cc := dialServer(t, c)

	chat := chatFrom(t, "A", "to everyone")
	writeEnvelope(t, a, chat)

	assert.Equal(t, chat, readEnvelope(t, b))
	assert.Equal(t, chat, readEnvelope(t, cc))

	ack := readEnvelope(t, a)
	assert.Equal(t, wire.CategoryAck, ack.Category)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := a.Read(make([]byte, 64))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "sender must only receive its ack")
}

func TestServerLearnsPeersAndSharesRoster(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{SelfAddress: "AA:BB"})
	require.NoError(t, c.StartServer(context.Background()))

	p1 := dialServer(t, c)
	p2 := dialServer(t, c)
	writeEnvelope(t, p1, wire.NewMACAddressEnvelope("CC:DD"))
	waitStatus(t, c, func(st Status) bool { return len(st.KnownPeers) == 1 })
	writeEnvelope(t, p2, wire.NewMACAddressEnvelope("EE:FF"))
	waitStatus(t, c, func(st Status) bool { return len(st.KnownPeers) == 2 })

	require.NoError(t, c.ShareRoster(context.Background()))

	for _, p := range []net.Conn{p1, p2} {
		env := readEnvelope(t, p)
		assert.Equal(t, wire.CategoryGroupRoster, env.Category)
		assert.Equal(t, []string{"AA:BB", "CC:DD", "EE:FF"}, wire.DecodeRoster(env.Body))
	}

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.MultiHop)
}

func TestShareRosterRequiresServer(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{})
	assert.ErrorIs(t, c.ShareRoster(context.Background()), ErrNotServer)
}

type orderedLinker struct {
	mu    sync.Mutex
	peers []string
}

type discardLink struct{}

func (discardLink) Send([]byte) error { return nil }
func (discardLink) Close() error      { return nil }

func (l *orderedLinker) RequestDirectLink(ctx context.Context, peer string) (routing.Link, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers = append(l.peers, peer)
	return discardLink{}, nil
}

func TestRosterSwitchesToMultiHop(t *testing.T) {
	linker := &orderedLinker{}
	reports := make(chan routing.Report, 1)
	router := routing.NewRouter(linker, routing.WithReportHandler(func(r routing.Report) { reports <- r }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	c := spawnTestConnection(t, ConnectionOptions{SelfAddress: "AA:BB", Relay: router})
	server, _ := joinRawServer(t, c)

	writeEnvelope(t, server, wire.NewRosterEnvelope([]string{"AA:BB", "CC:DD", "EE:FF"}))
	waitStatus(t, c, func(st Status) bool { return st.MultiHop })

	res, err := c.SubmitOutgoingMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, res.Relayed)

	select {
	case report := <-reports:
		assert.Equal(t, []string{"CC:DD", "EE:FF"}, report.Delivered)
	case <-time.After(5 * time.Second):
		t.Fatal("relay sweep did not run")
	}
	linker.mu.Lock()
	assert.Equal(t, []string{"CC:DD", "EE:FF"}, linker.peers)
	linker.mu.Unlock()

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.PendingAcks, 1, "relayed messages stay pending until acknowledged")
}

func TestMultiHopWithoutRelay(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{})
	server, _ := joinRawServer(t, c)
	writeEnvelope(t, server, wire.NewRosterEnvelope([]string{"CC:DD"}))
	waitStatus(t, c, func(st Status) bool { return st.MultiHop })

	_, err := c.SubmitOutgoingMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoRelay)
}

func TestRoleFlipResetsGroupState(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{})
	require.NoError(t, c.StartServer(context.Background()))
	require.NoError(t, c.AddPeer(context.Background(), "CC:DD"))
	waitStatus(t, c, func(st Status) bool { return len(st.KnownPeers) == 1 })

	joinRawServer(t, c)
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conn.RoleClient, st.Role)
	assert.Empty(t, st.KnownPeers)
	assert.Empty(t, st.ListenAddr)
}

func TestResetPeersLeavesMultiHop(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{})
	server, _ := joinRawServer(t, c)
	writeEnvelope(t, server, wire.NewRosterEnvelope([]string{"CC:DD", "EE:FF"}))
	waitStatus(t, c, func(st Status) bool { return st.MultiHop })

	require.NoError(t, c.ResetPeers(context.Background()))
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.MultiHop)
	assert.Empty(t, st.KnownPeers)
}

func TestStartServerBindError(t *testing.T) {
	occupied, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	c := spawnTestConnection(t, ConnectionOptions{
		ManagerOptions: []conn.Option{conn.WithPort(port)},
	})

	var bindErr *conn.BindError
	require.ErrorAs(t, c.StartServer(context.Background()), &bindErr)
	assert.Equal(t, port, bindErr.Port)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Contains(t, st.LastError, strconv.Itoa(port))
	assert.Equal(t, conn.RoleUnset, st.Role)
}

func TestClientReportsLostUplink(t *testing.T) {
	ui := newRecordingUI()
	c := spawnTestConnection(t, ConnectionOptions{UI: ui})
	server, _ := joinRawServer(t, c)
	assert.Equal(t, int32(1), ui.established.Load())

	require.NoError(t, server.Close())
	waitFor(t, func() bool { return ui.lost.Load() == 1 })

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conn.RoleUnset, st.Role)
	assert.False(t, st.Connected)
}

func TestConnectFailureIsReported(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := spawnTestConnection(t, ConnectionOptions{})
	require.NoError(t, c.StartClient(context.Background(), addr))

	st := waitStatus(t, c, func(st Status) bool { return st.LastError != "" })
	assert.Contains(t, st.LastError, addr)
	assert.Equal(t, conn.RoleUnset, st.Role)
}

func TestSubmitRejectsRowDelimiter(t *testing.T) {
	c := spawnTestConnection(t, ConnectionOptions{})
	_, err := c.SubmitOutgoingMessage(context.Background(), "a^&^b")
	assert.ErrorIs(t, err, wire.ErrInvalidRow)
}
