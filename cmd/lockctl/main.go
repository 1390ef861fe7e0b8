// Command lockctl is a reference client for the lock engine.
//
// It demonstrates a complete connection lifecycle: scan for a lock by
// serial number, run the secure handshake, and issue the typed
// LockApi operations against it, all while printing the supervisor's
// protocol log events live.
//
// Since real BLE radio access is platform-specific and outside this
// module's scope, lockctl drives an in-process simulated lock
// (internal/simlock) rather than a native central manager. The
// supervisor, secure session, and command layer it exercises are
// exactly what a real transport.Central implementation would drive.
//
// Usage:
//
//	lockctl connect --serial 12345678-123456 [--keep-connection] [--config profile.yaml]
//	lockctl register --serial 12345678-123456
//
// Flags:
//
//	--serial string           Lock serial number (format NNNNNNNN-NNNNNN)
//	--config string           YAML connection profile path
//	--keystore-dir string     Directory for persisted access certificates
//	--keep-connection         Retry indefinitely instead of giving up after 3 attempts
//	--protocol-log string     File path for protocol event logging (CBOR, .lelog)
//	--quiet                   Suppress console protocol event logging
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lockengine/lockengine-go/internal/simlock"
	"github.com/lockengine/lockengine-go/pkg/cert"
	"github.com/lockengine/lockengine-go/pkg/config"
	"github.com/lockengine/lockengine-go/pkg/keystore"
	lelog "github.com/lockengine/lockengine-go/pkg/log"
	"github.com/lockengine/lockengine-go/pkg/securesession"
	"github.com/lockengine/lockengine-go/pkg/supervisor"
)

var rootFlags struct {
	serial         string
	configPath     string
	keystoreDir    string
	keepConnection bool
	protocolLog    string
	quiet          bool
}

func main() {
	root := &cobra.Command{
		Use:   "lockctl",
		Short: "Reference client for the lock engine protocol",
	}
	root.PersistentFlags().StringVar(&rootFlags.serial, "serial", "", "lock serial number (NNNNNNNN-NNNNNN)")
	root.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "YAML connection profile path")
	root.PersistentFlags().StringVar(&rootFlags.keystoreDir, "keystore-dir", "", "directory for persisted access certificates (default: in-memory)")
	root.PersistentFlags().BoolVar(&rootFlags.keepConnection, "keep-connection", false, "retry indefinitely instead of giving up after 3 attempts")
	root.PersistentFlags().StringVar(&rootFlags.protocolLog, "protocol-log", "", "file path for protocol event logging (CBOR, .lelog)")
	root.PersistentFlags().BoolVar(&rootFlags.quiet, "quiet", false, "suppress console protocol event logging")

	root.AddCommand(newConnectCmd())
	root.AddCommand(newRegisterCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lockctl:", err)
		os.Exit(1)
	}
}

// newConnectCmd builds the "connect" subcommand: scan, handshake, and
// drop into the interactive REPL.
func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to a lock and open an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), false)
		},
	}
}

// newRegisterCmd builds the "register" subcommand: connect in add-lock
// (unsecure) mode, issue REGISTER_DEVICE, and exit.
func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Pair with a lock in add-lock mode and register this client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), true)
		},
	}
}

// runSession wires up a keystore, configuration profile, simulated
// lock, and Supervisor, then either runs a one-shot registration or
// hands off to the interactive REPL.
func runSession(parent context.Context, addLockMode bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	profile, err := loadProfile()
	if err != nil {
		return err
	}
	if rootFlags.serial != "" {
		profile.Serial = rootFlags.serial
	}
	if profile.Serial == "" {
		return fmt.Errorf("lockctl: --serial or config.serial is required")
	}
	if rootFlags.keepConnection {
		profile.KeepConnection = true
	}

	store, err := openKeystore()
	if err != nil {
		return err
	}
	mobileKeys := openMobileKeyProvider()

	id, err := simlock.NewIdentity(profile.Serial)
	if err != nil {
		return fmt.Errorf("lockctl: provision simulated lock: %w", err)
	}
	device := simlock.NewDevice(id)
	central := simlock.NewCentral(id, device)

	logger, closeLogger, err := buildLogger()
	if err != nil {
		return err
	}
	defer closeLogger()

	var deviceCert *cert.DeviceCertificate
	if !addLockMode {
		deviceCert, err = resolveCertificate(store, id)
		if err != nil {
			return err
		}
	}

	cfg := supervisor.Config{
		Serial:             profile.Serial,
		KeepConnection:     profile.KeepConnection,
		Certificate:        deviceCert,
		SignedTimeProvider: clientSignedTimeProvider,
		Logger:             logger,
	}
	if addLockMode {
		cfg.Unsecure = consoleListener{}
	} else {
		cfg.NewCrypto = func() (securesession.Crypto, error) {
			return securesession.NewReferenceCrypto(deviceCert.DevicePublicKey), nil
		}
		cfg.Secure = consoleListener{}
	}

	sup, err := supervisor.New(central, cfg)
	if err != nil {
		return fmt.Errorf("lockctl: configure supervisor: %w", err)
	}

	fmt.Printf("lockctl: connecting to %s...\n", profile.Serial)
	if err := sup.Connect(ctx); err != nil {
		return fmt.Errorf("lockctl: connect: %w", err)
	}
	defer sup.Disconnect()
	fmt.Println("lockctl: connected")

	api, err := sup.API()
	if err != nil {
		return fmt.Errorf("lockctl: %w", err)
	}

	if addLockMode {
		return registerAndExit(ctx, api, id, store, mobileKeys, profile.Serial)
	}

	return runREPL(ctx, api, profile)
}

func loadProfile() (config.Profile, error) {
	if rootFlags.configPath == "" {
		return config.Profile{}, nil
	}
	return config.Load(rootFlags.configPath)
}

func openKeystore() (keystore.Store, error) {
	if rootFlags.keystoreDir == "" {
		return keystore.NewMemStore(), nil
	}
	store := keystore.NewFileStore(rootFlags.keystoreDir)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("lockctl: load keystore: %w", err)
	}
	return store, nil
}

// openMobileKeyProvider returns the same on-disk root as the
// certificate store when one is configured, so both halves of the
// keystore capability (§6) persist together; otherwise an in-memory
// provider that mints a fresh identity every run.
func openMobileKeyProvider() keystore.MobileKeyProvider {
	if rootFlags.keystoreDir == "" {
		return keystore.NewMemKeyProvider()
	}
	return keystore.NewFileKeyProvider(rootFlags.keystoreDir)
}

// resolveCertificate decodes the access certificate matching the
// simulated lock identity this process just provisioned, and persists
// it to the keystore. This demo's simulated lock mints a fresh signing
// key every run rather than persisting device state across restarts,
// so unlike a real lock, a certificate carried over from a prior run
// would no longer match the device's current key; the keystore is
// still exercised as real client code would use it, just always
// refreshed against the device it is about to talk to.
func resolveCertificate(store keystore.Store, id *simlock.Identity) (*cert.DeviceCertificate, error) {
	c, err := cert.Decode(id.RawCertB64, id.PublicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("lockctl: decode certificate: %w", err)
	}
	if err := store.Put(id.Serial, c); err != nil {
		return nil, fmt.Errorf("lockctl: store certificate: %w", err)
	}
	if err := store.Save(); err != nil {
		return nil, fmt.Errorf("lockctl: save keystore: %w", err)
	}
	return c, nil
}

func buildLogger() (lelog.Logger, func(), error) {
	var loggers []lelog.Logger
	if !rootFlags.quiet {
		loggers = append(loggers, lelog.NewSlogAdapter(slog.Default()))
	}

	closeFn := func() {}
	if rootFlags.protocolLog != "" {
		fileLogger, err := lelog.NewFileLogger(rootFlags.protocolLog)
		if err != nil {
			return nil, nil, fmt.Errorf("lockctl: open protocol log: %w", err)
		}
		loggers = append(loggers, fileLogger)
		closeFn = func() { _ = fileLogger.Close() }
	}

	switch len(loggers) {
	case 0:
		return lelog.NoopLogger{}, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return lelog.NewMultiLogger(loggers...), closeFn, nil
	}
}
