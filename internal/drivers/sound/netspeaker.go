// Package sound implements the NetSpeaker-V2 network speaker driver.
//
// Commands are JSON objects terminated by a blank line:
//
//	{"command":"start_play","cseq":"3","index":"alarm.mp3"}\r\n\r\n
//
// cseq increments per command. The speaker answers in the same framing and
// announces the end of playback with a "play_end" message.
package sound

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/drivers/link"
	"github.com/nerrad567/echo-control-core/internal/protocol"
)

// Speaker commands.
const (
	cmdStartPlay   = "start_play"
	cmdStopPlay    = "stop_play"
	cmdStartTTS    = "start_tts_play"
	cmdModelChange = "model_change"
	cmdSetVolume   = "set_volume"
	cmdOnline      = "online"
	notifyPlayEnd  = "play_end"
)

const (
	defaultPort       = "9527"
	connectTimeout    = time.Second
	heartbeatInterval = 30 * time.Second
	ttsVolume         = "80"

	// eventHeartbeat is posted to the actor mailbox by the heartbeat ticker.
	eventHeartbeat = "heartbeat"

	// maxPending bounds buffered bytes while waiting for a terminator.
	maxPending = 64 * 1024
)

var terminator = []byte("\r\n\r\n")

type command struct {
	Command string `json:"command"`
	Cseq    string `json:"cseq"`
	Index   string `json:"index,omitempty"`
	Text    string `json:"txt,omitempty"`
	PlayVol string `json:"play_vol,omitempty"`
	Model   string `json:"model,omitempty"`
}

type notification struct {
	Command string `json:"command"`
	Cseq    string `json:"cseq"`
	Result  string `json:"result"`
}

// NetSpeakerV2 drives one NetSpeaker-V2.
type NetSpeakerV2 struct {
	*link.Link

	cseq      atomic.Uint32
	heartbeat time.Duration

	hbMu     sync.Mutex
	hbCancel context.CancelFunc

	rxMu sync.Mutex
	rx   []byte
}

var (
	_ device.Sound         = (*NetSpeakerV2)(nil)
	_ device.RawReader     = (*NetSpeakerV2)(nil)
	_ device.EventHandler  = (*NetSpeakerV2)(nil)
	_ device.ConfigHandler = (*NetSpeakerV2)(nil)
)

// New creates a NetSpeaker-V2 driver.
func New(dial link.Dialer) device.Driver {
	return &NetSpeakerV2{
		Link:      link.New(dial, connectTimeout),
		heartbeat: heartbeatInterval,
	}
}

// Declare implements device.Driver.
func (d *NetSpeakerV2) Declare(p *device.Properties) {
	p.Declare(device.PropType, "Sound", device.PropString, "Device type")
	p.Declare(device.PropPort, defaultPort, device.PropInt, "Speaker control port")
}

// Configure implements device.Driver.
func (d *NetSpeakerV2) Configure(a *device.Actor) error {
	return d.Bind(a)
}

// Connect opens the transport and starts the heartbeat ticker.
func (d *NetSpeakerV2) Connect(ctx context.Context) error {
	if err := d.Link.Connect(ctx); err != nil {
		return err
	}
	d.startHeartbeat(ctx)
	return nil
}

// Disconnect stops the heartbeat and closes the transport.
func (d *NetSpeakerV2) Disconnect() {
	d.stopHeartbeat()
	d.Link.Disconnect()

	d.rxMu.Lock()
	d.rx = d.rx[:0]
	d.rxMu.Unlock()
}

// startHeartbeat posts a heartbeat event through the mailbox so the
// "online" command is written from the actor goroutine.
func (d *NetSpeakerV2) startHeartbeat(parent context.Context) {
	d.hbMu.Lock()
	defer d.hbMu.Unlock()
	if d.hbCancel != nil {
		d.hbCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	d.hbCancel = cancel

	a := d.Actor()
	interval := d.heartbeat
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if a.IsOnline() {
					_ = a.PostEvent(eventHeartbeat)
				}
			}
		}
	}()
}

func (d *NetSpeakerV2) stopHeartbeat() {
	d.hbMu.Lock()
	defer d.hbMu.Unlock()
	if d.hbCancel != nil {
		d.hbCancel()
		d.hbCancel = nil
	}
}

// HandleEvent implements device.EventHandler.
func (d *NetSpeakerV2) HandleEvent(name string) {
	if name != eventHeartbeat {
		return
	}
	if a := d.Actor(); a == nil || !a.IsOnline() {
		return
	}
	_ = d.send(command{Command: cmdOnline})
}

// Play implements device.Sound. The speaker has no loop option; loop is
// accepted for interface compatibility and ignored.
func (d *NetSpeakerV2) Play(filename string, _ bool) error {
	return d.send(command{Command: cmdStartPlay, Index: filename})
}

// StopPlay implements device.Sound.
func (d *NetSpeakerV2) StopPlay() error {
	return d.send(command{Command: cmdStopPlay})
}

// Speak implements device.Sound.
func (d *NetSpeakerV2) Speak(text string) error {
	return d.send(command{Command: cmdStartTTS, Text: text, PlayVol: ttsVolume})
}

// SetMic implements device.Sound. Opening the mic switches the speaker to
// broadcast mode; the audio stream itself is out of band.
func (d *NetSpeakerV2) SetMic(on bool) error {
	model := "idle"
	if on {
		model = "mic_broadcast"
	}
	return d.send(command{Command: cmdModelChange, Model: model})
}

// SetVolume implements device.Sound.
func (d *NetSpeakerV2) SetVolume(volume uint8) error {
	if volume > 100 {
		return device.ErrInvalidArgument
	}
	return d.send(command{Command: cmdSetVolume, PlayVol: strconv.Itoa(int(volume))})
}

// encode renders one command with the next sequence number.
func (d *NetSpeakerV2) encode(c command) ([]byte, error) {
	c.Cseq = strconv.FormatUint(uint64(d.cseq.Add(1)), 10)
	body, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return append(body, terminator...), nil
}

func (d *NetSpeakerV2) send(c command) error {
	frame, err := d.encode(c)
	if err != nil {
		return err
	}
	return d.Send(frame)
}

// ReadRaw implements device.RawReader.
func (d *NetSpeakerV2) ReadRaw(buf []byte, timeout time.Duration) (int, error) {
	return d.Read(buf, timeout)
}

// OnRawData implements device.RawReader.
func (d *NetSpeakerV2) OnRawData(data []byte) {
	a := d.Actor()

	d.rxMu.Lock()
	d.rx = append(d.rx, data...)
	var msgs [][]byte
	for {
		i := bytes.Index(d.rx, terminator)
		if i < 0 {
			break
		}
		msgs = append(msgs, append([]byte(nil), d.rx[:i]...))
		d.rx = d.rx[i+len(terminator):]
	}
	if len(d.rx) > maxPending {
		a.Logger().Warn("discarding unterminated speaker data", "device", a.ID(), "bytes", len(d.rx))
		d.rx = d.rx[:0]
	}
	d.rxMu.Unlock()

	for _, msg := range msgs {
		var n notification
		if err := json.Unmarshal(msg, &n); err != nil {
			a.Logger().Warn("malformed speaker message", "device", a.ID(), "error", err)
			continue
		}
		if n.Command == notifyPlayEnd {
			a.Emit(protocol.NewSoundPlayEndPush())
			continue
		}
		a.Logger().Debug("speaker reply", "device", a.ID(), "command", n.Command, "cseq", n.Cseq, "result", n.Result)
	}
}
