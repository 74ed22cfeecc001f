package http2

import (
	"sync"

	"github.com/dgrr/h2e/http2utils"
)

const FrameSettings FrameType = 0x4

var _ Frame = &Settings{}

const (
	// Default values for Settings (https://tools.ietf.org/html/rfc7540#section-6.5.2)
	defaultHeaderTableSize   uint32 = 4096
	defaultConcurrentStreams uint32 = 100
	defaultWindowSize        uint32 = 1<<16 - 1
	defaultMaxFrameSize      uint32 = 1 << 14

	maxWindowSize = 1<<31 - 1
	maxFrameSize  = 1<<24 - 1

	// Settings parameter identifiers (https://httpwg.org/specs/rfc7540.html#SettingValues)
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingInitialWindowSize    uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
)

var settingsPool = sync.Pool{
	New: func() interface{} {
		s := &Settings{}
		s.Reset()
		return s
	},
}

// AcquireSettings returns a Settings frame with RFC 7540 default values
// from the pool.
func AcquireSettings() *Settings {
	return settingsPool.Get().(*Settings)
}

// ReleaseSettings resets st and returns it to the pool.
func ReleaseSettings(st *Settings) {
	st.Reset()
	settingsPool.Put(st)
}

// Settings represents the set of parameters negotiated between the
// two endpoints of a connection.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	headerTableSize      uint32
	push                 bool
	maxConcurrentStreams uint32
	maxWindowSize        uint32
	maxFrameSize         uint32
	maxHeaderListSize    uint32
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

// Reset resets st to RFC 7540 default values.
func (st *Settings) Reset() {
	st.ack = false
	st.headerTableSize = defaultHeaderTableSize
	st.push = true
	st.maxConcurrentStreams = defaultConcurrentStreams
	st.maxWindowSize = defaultWindowSize
	st.maxFrameSize = defaultMaxFrameSize
	st.maxHeaderListSize = 0
}

// CopyTo copies st into other.
func (st *Settings) CopyTo(other *Settings) {
	other.ack = st.ack
	other.headerTableSize = st.headerTableSize
	other.push = st.push
	other.maxConcurrentStreams = st.maxConcurrentStreams
	other.maxWindowSize = st.maxWindowSize
	other.maxFrameSize = st.maxFrameSize
	other.maxHeaderListSize = st.maxHeaderListSize
}

// IsAck reports whether this Settings frame acknowledges a previous one.
func (st *Settings) IsAck() bool {
	return st.ack
}

// SetAck marks this Settings frame as an acknowledgement. An ack frame
// carries no parameters.
func (st *Settings) SetAck(ack bool) {
	st.ack = ack
}

// HeaderTableSize returns SETTINGS_HEADER_TABLE_SIZE.
func (st *Settings) HeaderTableSize() uint32 {
	return st.headerTableSize
}

// SetHeaderTableSize sets SETTINGS_HEADER_TABLE_SIZE.
func (st *Settings) SetHeaderTableSize(size uint32) {
	st.headerTableSize = size
}

// Push reports whether server push is enabled (SETTINGS_ENABLE_PUSH).
func (st *Settings) Push() bool {
	return st.push
}

// SetPush sets SETTINGS_ENABLE_PUSH.
func (st *Settings) SetPush(enabled bool) {
	st.push = enabled
}

// MaxConcurrentStreams returns SETTINGS_MAX_CONCURRENT_STREAMS.
func (st *Settings) MaxConcurrentStreams() uint32 {
	return st.maxConcurrentStreams
}

// SetMaxConcurrentStreams sets SETTINGS_MAX_CONCURRENT_STREAMS.
func (st *Settings) SetMaxConcurrentStreams(n uint32) {
	st.maxConcurrentStreams = n
}

// MaxWindowSize returns SETTINGS_INITIAL_WINDOW_SIZE.
func (st *Settings) MaxWindowSize() uint32 {
	return st.maxWindowSize
}

// SetMaxWindowSize sets SETTINGS_INITIAL_WINDOW_SIZE. Values above
// 1<<31-1 are clamped per RFC 7540 §6.5.2.
func (st *Settings) SetMaxWindowSize(size uint32) {
	if size > maxWindowSize {
		size = maxWindowSize
	}
	st.maxWindowSize = size
}

// MaxFrameSize returns SETTINGS_MAX_FRAME_SIZE.
func (st *Settings) MaxFrameSize() uint32 {
	return st.maxFrameSize
}

// SetMaxFrameSize sets SETTINGS_MAX_FRAME_SIZE, clamped to the valid
// [1<<14, 1<<24-1] range.
func (st *Settings) SetMaxFrameSize(size uint32) {
	if size < defaultMaxFrameSize {
		size = defaultMaxFrameSize
	} else if size > maxFrameSize {
		size = maxFrameSize
	}
	st.maxFrameSize = size
}

// MaxHeaderListSize returns SETTINGS_MAX_HEADER_LIST_SIZE. Zero means
// unlimited.
func (st *Settings) MaxHeaderListSize() uint32 {
	return st.maxHeaderListSize
}

// SetMaxHeaderListSize sets SETTINGS_MAX_HEADER_LIST_SIZE.
func (st *Settings) SetMaxHeaderListSize(size uint32) {
	st.maxHeaderListSize = size
}

func (st *Settings) Deserialize(fr *FrameHeader) error {
	if fr.Flags().Has(FlagAck) {
		st.ack = true
		return nil
	}

	payload := fr.payload
	if len(payload)%6 != 0 {
		return ErrMissingBytes
	}

	for len(payload) > 0 {
		key := uint16(payload[0])<<8 | uint16(payload[1])
		value := http2utils.BytesToUint32(payload[2:6])

		switch key {
		case settingHeaderTableSize:
			st.headerTableSize = value
		case settingEnablePush:
			st.push = value != 0
		case settingMaxConcurrentStreams:
			st.maxConcurrentStreams = value
		case settingInitialWindowSize:
			if value > maxWindowSize {
				return NewGoAwayError(FlowControlError, "initial window size too large")
			}
			st.maxWindowSize = value
		case settingMaxFrameSize:
			if value < defaultMaxFrameSize || value > maxFrameSize {
				return NewGoAwayError(ProtocolError, "invalid max frame size")
			}
			st.maxFrameSize = value
		case settingMaxHeaderListSize:
			st.maxHeaderListSize = value
		}

		payload = payload[6:]
	}

	return nil
}

func (st *Settings) Serialize(fr *FrameHeader) {
	fr.payload = fr.payload[:0]

	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		return
	}

	fr.payload = appendSetting(fr.payload, settingHeaderTableSize, st.headerTableSize)
	fr.payload = appendSetting(fr.payload, settingEnablePush, boolToUint32(st.push))
	fr.payload = appendSetting(fr.payload, settingMaxConcurrentStreams, st.maxConcurrentStreams)
	fr.payload = appendSetting(fr.payload, settingInitialWindowSize, st.maxWindowSize)
	fr.payload = appendSetting(fr.payload, settingMaxFrameSize, st.maxFrameSize)
	if st.maxHeaderListSize != 0 {
		fr.payload = appendSetting(fr.payload, settingMaxHeaderListSize, st.maxHeaderListSize)
	}
}

func appendSetting(dst []byte, key uint16, value uint32) []byte {
	dst = append(dst, byte(key>>8), byte(key))
	return http2utils.AppendUint32Bytes(dst, value)
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
