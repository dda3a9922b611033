// Command tsombot is a headless client: it connects, authenticates, mirrors
// the world and walks in circles until told to stop.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/client"
	"github.com/tsom/server/internal/data"
	"github.com/tsom/server/internal/entity"
	gonet "github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/net/transport"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	addr      string
	port      uint16
	nickname  string
	version   uint32
	classFile string
	tick      time.Duration
	duration  time.Duration
	verbose   bool
}

func newRootCommand() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "tsombot",
		Short: "Headless client that joins a tsom server and walks in circles",
		Long: `Connects to a tsom server, authenticates under the given nickname and
mirrors the replicated world, logging its size once a second.

Example:
  tsombot --addr 127.0.0.1 --name walker --for 30s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o)
		},
	}

	cmd.Flags().StringVar(&o.addr, "addr", "127.0.0.1", "server address")
	cmd.Flags().Uint16Var(&o.port, "port", 14768, "server port")
	cmd.Flags().StringVar(&o.nickname, "name", "bot", "nickname")
	cmd.Flags().Uint32Var(&o.version, "protocol", 1, "protocol version announced on connect")
	cmd.Flags().StringVar(&o.classFile, "classes", "data/yaml/entity_classes.yaml", "entity class file, empty to skip")
	cmd.Flags().DurationVar(&o.tick, "tick", 50*time.Millisecond, "input send interval")
	cmd.Flags().DurationVar(&o.duration, "for", 0, "disconnect after this long (0 = until interrupted)")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func run(o *options) error {

	var log *zap.Logger
	var err error
	if o.verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// The mirror only needs class schemas; init callbacks run server side.
	var classes *entity.Registry
	if o.classFile != "" {
		classes = entity.NewRegistry()
		noInit := func(string) (entity.InitFunc, error) { return nil, nil }
		if _, err := data.LoadEntityClasses(o.classFile, classes, noInit); err != nil {
			return fmt.Errorf("entity classes: %w", err)
		}
	}

	host, err := transport.NewClient(2, log)
	if err != nil {
		return err
	}
	defer host.Close()
	peer, err := host.Dial(o.addr, o.port, 2, o.version)
	if err != nil {
		return err
	}

	h := client.NewHandler(client.NewMirror(classes, log))
	var sess *gonet.Session

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	var deadline <-chan time.Time
	if o.duration > 0 {
		deadline = time.After(o.duration)
	}
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	var heading float32
	for {
		select {
		case <-stop:
			return disconnect(sess, peer, host)
		case <-deadline:
			return disconnect(sess, peer, host)
		case <-report.C:
			m := h.Mirror()
			log.Info("mirror",
				zap.Strings("players", m.Players()),
				zap.Int("entities", m.EntityCount()),
				zap.Int("chunks", m.ChunkCount()),
				zap.Uint16("tick", m.Tick()),
				zap.Uint8("acked_input", uint8(m.AckedInput())),
			)
		case <-ticker.C:
			done := false
			host.Poll(0, func(ev transport.Event) {
				switch ev.Type {
				case transport.EventConnect:
					sess = gonet.NewSession(1, ev.Peer, o.version, gonet.SessionOptions{}, log)
					gonet.SetHandler(sess, h)
					if err := h.Authenticate(sess, o.nickname); err != nil {
						log.Error("auth request", zap.Error(err))
					}
				case transport.EventReceive:
					if sess != nil {
						sess.HandlePacket(ev.Data)
					}
				case transport.EventDisconnect:
					log.Info("disconnected", zap.Stringer("reason", packet.DisconnectReason(ev.ConnectData)))
					done = true
				}
			})
			if done || h.AuthFailed() {
				return nil
			}
			if sess != nil && h.Authenticated() {
				heading += 0.05
				in := packet.PlayerInputs{
					MoveForward: true,
					Orientation: mgl32.QuatRotate(heading, mgl32.Vec3{0, 1, 0}),
				}
				if _, err := h.SendInputs(sess, in); err != nil {
					log.Warn("send inputs", zap.Error(err))
				}
			}
			host.Flush()
		}
	}
}

// disconnect leaves without a Disconnect packet: the client send table has
// no entry for it, so only the link is dropped.
func disconnect(sess *gonet.Session, peer *transport.Peer, host *transport.Host) error {
	if sess != nil {
		sess.Disconnect(packet.ReasonNone)
	} else {
		peer.Disconnect(packet.ReasonNone)
	}
	host.Flush()
	return nil
}
