package channel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/net/proxy"
)

// waPairing bridges whatsmeow's socket callbacks to the typed lifecycle
// event stream the session manager reduces.
type waPairing struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	events    chan LifecycleEvent
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewWhatsAppPairing opens a fresh device store and starts a pairing
// attempt. Any stale devices in the store are dropped first so the network
// always issues a fresh QR code.
func NewWhatsAppPairing(ctx context.Context, cfg Config, log zerolog.Logger) (PairingTransport, error) {
	log = log.With().Str("channel", string(TypeWhatsApp)).Logger()

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+cfg.SessionPath+"?_foreign_keys=on", waLog.Noop)
	if err != nil {
		return nil, &ConnectError{ChannelType: TypeWhatsApp, Reason: "credential store unavailable", Err: err}
	}

	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not list existing devices")
	} else {
		for _, dev := range devices {
			if err := container.DeleteDevice(ctx, dev); err != nil {
				log.Warn().Err(err).Stringer("device", dev.ID).Msg("failed to delete stale device")
			}
		}
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, &ConnectError{ChannelType: TypeWhatsApp, Reason: "failed to create device", Err: err}
	}

	cli := whatsmeow.NewClient(device, waLog.Stdout("whatsmeow", "WARN", true))

	if cfg.ProxyAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.ProxyAddr, nil, proxy.Direct)
		if err != nil {
			container.Close()
			return nil, &ConnectError{ChannelType: TypeWhatsApp, Reason: "proxy unavailable", Err: err}
		}
		cli.SetSOCKSProxy(dialer)
	}

	t := &waPairing{
		cli:       cli,
		container: container,
		events:    make(chan LifecycleEvent, 16),
		done:      make(chan struct{}),
		log:       log,
	}

	// GetQRChannel must be called before Connect.
	qrChan, err := cli.GetQRChannel(ctx)
	if err != nil {
		container.Close()
		return nil, &ConnectError{ChannelType: TypeWhatsApp, Reason: "failed to open QR channel", Err: err}
	}

	cli.AddEventHandler(t.handleEvent)

	if err := cli.Connect(); err != nil {
		container.Close()
		return nil, &ConnectError{ChannelType: TypeWhatsApp, Reason: "network unreachable", Err: err}
	}

	go t.forwardQR(qrChan)

	return t, nil
}

func (t *waPairing) Events() <-chan LifecycleEvent { return t.events }

func (t *waPairing) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.cli.Disconnect()
		t.container.Close()
	})
	return nil
}

func (t *waPairing) push(evt LifecycleEvent) {
	select {
	case <-t.done:
	case t.events <- evt:
	default:
		t.log.Warn().Str("kind", string(evt.Kind)).Msg("lifecycle event buffer full, dropping event")
	}
}

func (t *waPairing) forwardQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			t.push(LifecycleEvent{Kind: LifecycleQR, QRCode: item.Code})
		case "timeout":
			// All codes expired without a scan; the session TTL handles
			// teardown, nothing to report.
			t.log.Debug().Msg("QR channel timed out")
			return
		}
	}
}

func (t *waPairing) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		t.push(LifecycleEvent{Kind: LifecycleOpen})
	case *events.PairSuccess:
		t.push(LifecycleEvent{Kind: LifecycleCredsUpdated})
	case *events.LoggedOut:
		// The remote side revoked the pairing; the device store is useless
		// now, drop it so the next attempt starts clean.
		if err := t.cli.Store.Delete(context.Background()); err != nil {
			t.log.Warn().Err(err).Msg("failed to delete device store after logout")
		}
		t.push(LifecycleEvent{Kind: LifecycleClose, Code: CloseCodeLoggedOut})
	case *events.StreamReplaced:
		t.push(LifecycleEvent{Kind: LifecycleClose, Code: CloseCodeReplaced})
	case *events.ConnectFailure:
		t.push(LifecycleEvent{Kind: LifecycleClose, Code: int(evt.Reason)})
	case *events.Disconnected:
		// whatsmeow reconnects on its own after a plain disconnect.
		t.log.Debug().Msg("socket disconnected, waiting for automatic reconnect")
	}
}
