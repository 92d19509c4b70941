// lean-proof-bridge sits between an editor's LSP client and the build-server
// child process, forwarding every message unchanged while maintaining a
// second, custom-RPC conversation with the server to keep a proof DAG for
// the editor's cursor position available to terminal viewers over a local
// socket.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rockerboo/lean-proof-bridge/internal/backend"
	"github.com/rockerboo/lean-proof-bridge/internal/codec"
	"github.com/rockerboo/lean-proof-bridge/internal/config"
	"github.com/rockerboo/lean-proof-bridge/internal/interceptor"
	"github.com/rockerboo/lean-proof-bridge/internal/logging"
	"github.com/rockerboo/lean-proof-bridge/internal/model"
	"github.com/rockerboo/lean-proof-bridge/internal/navigator"
	"github.com/rockerboo/lean-proof-bridge/internal/shadow"
	"github.com/rockerboo/lean-proof-bridge/internal/viewerbus"
)

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "lean-proof-bridge",
		Short: "transparent LSP interceptor with proof-DAG telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}
	config.BindFlags(root, v)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// syncWriter serializes Write calls onto a shared io.Writer so two
// independent logical streams (the transparently-forwarded editor<->server
// traffic and the shadow client's own requests, or the forwarded server
// traffic and the navigator's own editor-bound requests) never interleave a
// partial frame when they share one physical pipe (codec.Writer's
// single-Write-call framing relies on that serialization to stay atomic).
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// codecSender adapts a codec.Writer to interceptor.Sender (and to
// navigator.Sender, which shares the same method shape).
type codecSender struct {
	cw *codec.Writer
}

func (s codecSender) Send(frame *codec.Frame) error { return s.cw.WriteFrame(frame) }

// duplexPipe pairs one end of an io.Pipe (read side: a tee of the
// build-server's stdout) with the shared, mutex-guarded stdin writer (write
// side) into the io.ReadWriteCloser the shadow client's jsonrpc2 stream
// needs. Closing it only closes the pipe's read end; the shared stdin
// outlives it, owned by the backend supervisor.
type duplexPipe struct {
	r *io.PipeReader
	w io.Writer
}

func (d *duplexPipe) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *duplexPipe) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d *duplexPipe) Close() error                { return d.r.Close() }

// bridgeObserver wires the editor-direction interceptor's classified events
// into the viewer bus and the shadow client: cursor movement publishes a
// Cursor message and dispatches a bounded, fire-and-forget proof-DAG fetch
// over a small worker pool; document sync events keep the shadow client's
// document-version mirror coherent.
type bridgeObserver struct {
	fetch chan model.CursorInfo
	sc    *shadow.Client
	pub   shadow.Publisher
}

const fetchWorkerCount = 4

func newBridgeObserver(sc *shadow.Client, pub shadow.Publisher) *bridgeObserver {
	o := &bridgeObserver{fetch: make(chan model.CursorInfo, 8), sc: sc, pub: pub}
	for i := 0; i < fetchWorkerCount; i++ {
		go o.worker()
	}
	return o
}

func (o *bridgeObserver) worker() {
	for c := range o.fetch {
		o.sc.GetProofDag(c.Uri, c.Position, "")
	}
}

func (o *bridgeObserver) OnCursor(c model.CursorInfo) {
	o.pub.Publish(model.NewCursorMessage(c))
	select {
	case o.fetch <- c:
	default:
		logging.Warn("proof dag fetch queue full, dropping cursor event", "uri", c.Uri)
	}
}

func (o *bridgeObserver) OnDidOpen(uri string, version uint32)   { o.sc.DidOpen(uri, version) }
func (o *bridgeObserver) OnDidChange(uri string, version uint32) { o.sc.DidChange(uri, version) }

// noopObserver is used for the server->editor direction, which never carries
// editor-originated cursor or document-sync traffic.
type noopObserver struct{}

func (noopObserver) OnCursor(model.CursorInfo)  {}
func (noopObserver) OnDidOpen(string, uint32)   {}
func (noopObserver) OnDidChange(string, uint32) {}

func run(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	if err := logging.Init(cfg.LogPath, cfg.LogLevel); err != nil {
		return err
	}
	defer logging.Sync()

	// Step 1: the viewer bus, so it's already listening before anything that
	// might want to publish to it exists.
	bus, err := viewerbus.New(cfg.SocketPath)
	if err != nil {
		return err
	}

	// Step 2: spawn the build-server child.
	sup, serverStdout, serverStdin, err := backend.Spawn(backend.Options{
		BackendOverride:      cfg.BackendOverride,
		PrettyPrinterOptions: cfg.PrettyPrinterOptions,
		LogPath:              cfg.LogPath,
	})
	if err != nil {
		return err
	}
	defer sup.Close()

	sharedStdin := &syncWriter{w: serverStdin}
	sharedStdout := &syncWriter{w: os.Stdout}

	// Step 3: a deferred slot for the editor-direction Sender. Nothing in
	// this process's startup order actually needs it resolved before the
	// shadow client and navigator exist, but the slot is installed here
	// (before either interceptor's goroutine starts) and Set exactly once
	// immediately below, so a future addition that does need it resolved
	// early (e.g. an Observer that forwards synthetic frames to the editor)
	// fails fast on the documented invariant rather than silently racing.
	editorToServer := &interceptor.DeferredSender{}
	editorToServer.Set(codecSender{cw: codec.NewWriter(sharedStdin)})

	// Step 4: bind the shadow client to a tee of the server's real stdout,
	// writing onto the same shared, mutex-guarded stdin the editor-direction
	// interceptor forwards onto.
	shadowPipeR, shadowPipeW := io.Pipe()
	teedServerStdout := io.TeeReader(serverStdout, shadowPipeW)
	shadowClient := shadow.New(&duplexPipe{r: shadowPipeR, w: sharedStdin}, cfg.RequestIDFloor, bus)

	// Step 5: the editor-direction interceptor, with the shadow client
	// plugged in as part of its Observer for fire-and-forget dispatch.
	obs := newBridgeObserver(shadowClient, bus)
	editorInterceptor := interceptor.New("editor->server", os.Stdin, editorToServer, obs)

	// Step 6: the server-direction interceptor and the navigator share the
	// same editor-bound Sender, since both write LSP traffic to the editor's
	// stdin over the one stream it reads.
	serverToEditor := codecSender{cw: codec.NewWriter(sharedStdout)}
	serverInterceptor := interceptor.New("server->editor", teedServerStdout, serverToEditor, noopObserver{})
	nav := navigator.New(serverToEditor, shadowClient)

	// Step 7: run everything.
	go nav.Run(bus.Commands())
	go func() {
		if err := bus.Serve(); err != nil {
			logging.Error("viewer bus stopped", "error", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("shutting down")
		bus.Close()
		sup.Close()
		os.Exit(0)
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- editorInterceptor.Run() }()
	go func() { errCh <- serverInterceptor.Run() }()

	return <-errCh
}
