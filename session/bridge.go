package session

import (
	"strconv"
	"strings"

	"github.com/arloliu/go-serialhub/internal/pool"
	"github.com/arloliu/go-serialhub/serialport"
)

type bridgeStage int

const (
	stagePort bridgeStage = iota
	stageBaud
	stageDataBits
	stageStopBits
	stageParity
	stageXonXoff
	stageRTSCTS
)

const (
	defaultBridgePort = 1
	defaultBridgeBaud = 115200
)

var bridgePrompts = [...]string{
	stagePort:     "COM Port Number (Default: 1): ",
	stageBaud:     "Baud (Default: 115200): ",
	stageDataBits: "Data Bits (Options: 8,7 Default: 8): ",
	stageStopBits: "Stop Bits (Default: 1): ",
	stageParity:   "Parity (Options: O, E, N, Default: N): ",
	stageXonXoff:  "XON/XOFF (Options: Y, N, Default: N): ",
	stageRTSCTS:   "RTS/CTS (Options: Y, N, Default: N): ",
}

// bridgePrompt collects the bridge line settings one field per line, then
// takes the line over from its worker if needed and opens it.
type bridgePrompt struct {
	caps  *Capabilities
	stage bridgeStage

	portNum  int
	baud     int
	dataBits int
	stopBits int
	parity   serialport.Parity
	xonxoff  bool
	rtscts   bool
}

func newBridgePrompt(caps *Capabilities) (Handler, error) {
	return &bridgePrompt{caps: caps}, nil
}

func (h *bridgePrompt) Mode() Mode { return ModeBridgePrompt }

func (h *bridgePrompt) Render() {
	h.stage = stagePort
	h.caps.Term.Print("\r\nCOM Port Bridge setup. Press Enter to accept the default for any prompt.\r\n\r\n")
	h.caps.Term.Print(bridgePrompts[stagePort])
}

func (h *bridgePrompt) reprompt(msg string) {
	h.caps.Term.Print("\r\n" + msg + " " + bridgePrompts[h.stage])
}

func (h *bridgePrompt) next() {
	h.stage++
	h.caps.Term.Print("\r\n" + bridgePrompts[h.stage])
}

func (h *bridgePrompt) HandleLine(line string) (bool, Action) {
	switch h.stage {
	case stagePort:
		n, ok := parseIntDefault(line, defaultBridgePort)
		if !ok || n <= 0 {
			h.reprompt("Invalid port number.")
			return true, nil
		}
		h.portNum = n
		h.next()

	case stageBaud:
		n, ok := parseIntDefault(line, defaultBridgeBaud)
		if !ok || n <= 0 {
			h.reprompt("Invalid baud.")
			return true, nil
		}
		h.baud = n
		h.next()

	case stageDataBits:
		n, ok := parseIntDefault(line, 8)
		if !ok || (n != 7 && n != 8) {
			h.reprompt("Invalid.")
			return true, nil
		}
		h.dataBits = n
		h.next()

	case stageStopBits:
		n, ok := parseIntDefault(line, 1)
		if !ok || (n != 1 && n != 2) {
			h.reprompt("Invalid.")
			return true, nil
		}
		h.stopBits = n
		h.next()

	case stageParity:
		if line != "" && !strings.ContainsAny(strings.ToUpper(line[:1]), "OEN") {
			h.reprompt("Invalid.")
			return true, nil
		}
		h.parity, _ = serialport.ParseParity(line)
		h.next()

	case stageXonXoff:
		v, ok := parseYesNo(line)
		if !ok {
			h.reprompt("Invalid.")
			return true, nil
		}
		h.xonxoff = v
		h.next()

	case stageRTSCTS:
		v, ok := parseYesNo(line)
		if !ok {
			h.reprompt("Invalid.")
			return true, nil
		}
		h.rtscts = v

		return h.open()
	}

	return true, nil
}

// open takes over and opens the configured line. Any failure restarts the
// prompts from the first field, with a surrendered line handed back.
func (h *bridgePrompt) open() (bool, Action) {
	env := h.caps.Env
	t := h.caps.Term
	id := env.bridgeID(h.portNum)

	fail := func(format string, args ...any) (bool, Action) {
		t.Printf("\r\n*** "+format+" ***\r\n", args...)
		t.WaitKey(false)
		h.Render()

		return true, nil
	}

	if serialport.NormalizeID(id) == serialport.NormalizeID(h.caps.LocalID) {
		return fail("Cannot bridge %s to itself", id)
	}
	if env.Registry.IsSurrendered(id) {
		return fail("%s is already in use by a bridge", id)
	}

	cfg, err := serialport.NewPortConfig(id,
		serialport.WithBaudRate(h.baud),
		serialport.WithDataBits(h.dataBits),
		serialport.WithStopBits(h.stopBits),
		serialport.WithParity(h.parity),
		serialport.WithSoftwareFlowControl(h.xonxoff),
		serialport.WithHardwareFlowControl(h.rtscts),
	)
	if err != nil {
		return fail("Unable to open %s: %v", id, err)
	}

	surrendered := false
	if owner, ok := env.Registry.Owner(id); ok {
		if prev, ok := env.Registry.Surrender(id); ok {
			t.Printf("\r\nNote: %s is currently owned by this hub. Taking over...\r\n", id)
			_ = prev.Close()
			surrendered = true
			env.Logger.Info("bridge took over line", "target", id, "owner", owner, "by", h.caps.LocalID)
		}
	}

	var (
		port serialport.Port
		last error
	)
	for attempt := 0; attempt < env.BridgeOpenAttempts; attempt++ {
		if attempt > 0 {
			if err := pool.Sleep(t.ctx, env.BridgeOpenBackoff); err != nil {
				last = err
				break
			}
		}

		port, last = env.Opener.Open(cfg)
		if last == nil {
			break
		}
	}

	if last != nil {
		env.Logger.Warn("bridge open failed", "target", id, "attempts", env.BridgeOpenAttempts, "error", last)
		if surrendered {
			env.Registry.Restore(id)
		}

		return fail("Unable to open %s: %v", id, last)
	}

	return true, OpenBridge{Port: port, ID: id, Surrendered: surrendered}
}

func parseIntDefault(s string, def int) (int, bool) {
	if s == "" {
		return def, true
	}

	n, err := strconv.Atoi(s)

	return n, err == nil
}

func parseYesNo(s string) (bool, bool) {
	if s == "" {
		return false, true
	}

	switch strings.ToUpper(s[:1]) {
	case "Y":
		return true, true
	case "N":
		return false, true
	default:
		return false, false
	}
}

// bridgeRuntime is the mode of a live bridge. Typed bytes are relayed by
// the session; lines reach the handler only for ATH, or to be sent whole
// in line mode.
type bridgeRuntime struct {
	caps *Capabilities
	id   string
	port serialport.Port
}

func newBridgeRuntime(caps *Capabilities, id string, port serialport.Port) *bridgeRuntime {
	return &bridgeRuntime{caps: caps, id: id, port: port}
}

func (h *bridgeRuntime) Mode() Mode { return ModeBridgeRuntime }

func (h *bridgeRuntime) Render() {
	h.caps.Term.Printf("\r\nRouting %s <-> this session. Type ATM to stop.\r\n", h.id)
}

func (h *bridgeRuntime) HandleLine(line string) (bool, Action) {
	if strings.EqualFold(line, "ATH") {
		h.caps.Term.Print("\r\nDisconnecting...\r\n")
		return true, ReturnToMenu{}
	}

	if !h.caps.Env.BridgeLineMode {
		return true, nil
	}

	if _, err := h.port.Write([]byte(line + "\r\n")); err != nil {
		h.caps.Term.Print("\r\n*** COM bridge write failed ***\r\n")
		return true, ReturnToMenu{}
	}

	return true, nil
}
