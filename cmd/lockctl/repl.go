package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/lockengine/lockengine-go/internal/simlock"
	"github.com/lockengine/lockengine-go/pkg/cert"
	"github.com/lockengine/lockengine-go/pkg/config"
	"github.com/lockengine/lockengine-go/pkg/keystore"
	"github.com/lockengine/lockengine-go/pkg/lockapi"
	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// registerAndExit issues REGISTER_DEVICE in add-lock mode and persists
// the access certificate this demo minted for itself, then returns.
// There is no separate pairing exchange to source a certificate from
// in this demo, so the identity provisioned for the simulated lock
// doubles as the "granted" certificate (§4.4 add-lock mode). The
// REGISTER_DEVICE payload carries this mobile's own identity public
// key (§6 Keystore capability) alongside the serial, so the lock has
// something to bind the grant to besides the plaintext channel it
// arrived on.
func registerAndExit(ctx context.Context, api *lockapi.API, id *simlock.Identity, store keystore.Store, keys keystore.MobileKeyProvider, serial string) error {
	mobileKey, err := keys.GetMobileKeyPair()
	if err != nil {
		return fmt.Errorf("lockctl: provision mobile key pair: %w", err)
	}

	payload := registerDevicePayload(serial, mobileKey.PublicKeyBytes())
	if err := api.RegisterDevice(ctx, payload); err != nil {
		return fmt.Errorf("lockctl: register device: %w", err)
	}

	granted, err := cert.Decode(id.RawCertB64, id.PublicKeyB64)
	if err != nil {
		return fmt.Errorf("lockctl: decode granted certificate: %w", err)
	}
	if err := store.Put(serial, granted); err != nil {
		return fmt.Errorf("lockctl: store granted certificate: %w", err)
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("lockctl: save keystore: %w", err)
	}
	fmt.Println("lockctl: device registered")
	return nil
}

// registerDevicePayload builds the REGISTER_DEVICE request payload:
// the serial string followed by a one-byte length and the mobile
// public key bytes.
func registerDevicePayload(serial string, mobilePubKey []byte) []byte {
	payload := make([]byte, 0, len(serial)+1+len(mobilePubKey))
	payload = append(payload, []byte(serial)...)
	payload = append(payload, byte(len(mobilePubKey)))
	payload = append(payload, mobilePubKey...)
	return payload
}

// runREPL drives the interactive command loop, modeled directly on
// the teacher's cmd/mash-controller/interactive package but with line
// editing via readline instead of a bare bufio.Reader.
func runREPL(ctx context.Context, api *lockapi.API, profile config.Profile) error {
	rl, err := readline.New("lockctl> ")
	if err != nil {
		return fmt.Errorf("lockctl: start readline: %w", err)
	}
	defer rl.Close()

	printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lockctl: readline: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "help", "?":
			printHelp()
		case "open":
			runGateOp(ctx, api, profile, protocol.CmdOpen, api.Open)
		case "close":
			runGateOp(ctx, api, profile, protocol.CmdClose, api.Close)
		case "pull":
			runGateOp(ctx, api, profile, protocol.CmdPullSpring, api.PullSpring)
		case "state":
			cmdState(ctx, api)
		case "settings":
			cmdSettings(ctx, api)
		case "version":
			cmdVersion(ctx, api)
		case "signature":
			cmdSignature(ctx, api)
		case "wait":
			cmdWait(ctx, api, args)
		case "quit", "exit", "q":
			fmt.Println("lockctl: closing connection")
			return nil
		default:
			fmt.Printf("unknown command %q (type 'help' for commands)\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println(`
lockctl commands:
  open              - issue OPEN
  close             - issue CLOSE
  pull              - issue PULL_SPRING
  state             - GET_STATE
  settings          - GET_SETTINGS
  version           - GET_VERSION
  signature         - request and print the signed serial
  wait <open|closed> - block until a matching lock status change arrives
  help              - show this help
  quit              - exit`)
}

func runGateOp(ctx context.Context, api *lockapi.API, profile config.Profile, cmd protocol.Command, op func(context.Context, protocol.Param) error) {
	param := profile.Param(cmd)
	if err := op(ctx, param); err != nil {
		fmt.Printf("%s failed: %v\n", cmd, err)
		return
	}
	fmt.Printf("%s ok\n", cmd)
}

func cmdState(ctx context.Context, api *lockapi.API) {
	report, err := api.GetState(ctx)
	if err != nil {
		fmt.Println("state failed:", err)
		return
	}
	fmt.Printf("state=%s status=%s\n", lockStateName(report.State), lockStatusName(report.Status))
}

func cmdSettings(ctx context.Context, api *lockapi.API) {
	s, err := api.GetSettings(ctx)
	if err != nil {
		fmt.Println("settings failed:", err)
		return
	}
	fmt.Printf("revision=%d auto_lock=%v pull_spring=%v auto_lock_delay=%ds pull_spring_duration=%ds\n",
		s.Revision, s.AutoLockEnabled, s.PullSpringEnabled, s.AutoLockDelay, s.PullSpringDuration)
}

func cmdVersion(ctx context.Context, api *lockapi.API) {
	v, err := api.GetVersion(ctx)
	if err != nil {
		fmt.Println("version failed:", err)
		return
	}
	fmt.Println("firmware", v.String())
}

func cmdSignature(ctx context.Context, api *lockapi.API) {
	sig, err := api.GetSignature(ctx)
	if err != nil {
		fmt.Println("signature failed:", err)
		return
	}
	fmt.Println("signature:", base64.StdEncoding.EncodeToString(sig))
}

func cmdWait(ctx context.Context, api *lockapi.API, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: wait <open|closed>")
		return
	}

	var target protocol.LockState
	switch strings.ToLower(args[0]) {
	case "open":
		target = protocol.LockStateOpen
	case "closed":
		target = protocol.LockStateClosed
	default:
		fmt.Println("usage: wait <open|closed>")
		return
	}

	fmt.Printf("waiting for state=%s...\n", lockStateName(target))
	if err := api.WaitForLockStatusChange(ctx, target); err != nil {
		fmt.Println("wait failed:", err)
		return
	}
	fmt.Println("reached", lockStateName(target))
}
