package vhostuser

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// vhost_user request types
const (
	VHOST_USER_NONE                  = 0
	VHOST_USER_GET_FEATURES          = 1
	VHOST_USER_SET_FEATURES          = 2
	VHOST_USER_SET_OWNER             = 3
	VHOST_USER_RESET_OWNER           = 4
	VHOST_USER_SET_MEM_TABLE         = 5
	VHOST_USER_SET_LOG_BASE          = 6
	VHOST_USER_SET_LOG_FD            = 7
	VHOST_USER_SET_VRING_NUM         = 8
	VHOST_USER_SET_VRING_ADDR        = 9
	VHOST_USER_SET_VRING_BASE        = 10
	VHOST_USER_GET_VRING_BASE        = 11
	VHOST_USER_SET_VRING_KICK        = 12
	VHOST_USER_SET_VRING_CALL        = 13
	VHOST_USER_SET_VRING_ERR         = 14
	VHOST_USER_GET_PROTOCOL_FEATURES = 15
	VHOST_USER_SET_PROTOCOL_FEATURES = 16
	VHOST_USER_GET_QUEUE_NUM         = 17
	VHOST_USER_SET_VRING_ENABLE      = 18
	VHOST_USER_GET_CONFIG            = 24
	VHOST_USER_SET_CONFIG            = 25
	VHOST_USER_RESET_DEVICE          = 34
)

var requestNames = map[uint32]string{
	VHOST_USER_NONE:                  "none",
	VHOST_USER_GET_FEATURES:          "get_features",
	VHOST_USER_SET_FEATURES:          "set_features",
	VHOST_USER_SET_OWNER:             "set_owner",
	VHOST_USER_RESET_OWNER:           "reset_owner",
	VHOST_USER_SET_MEM_TABLE:         "set_mem_table",
	VHOST_USER_SET_LOG_BASE:          "set_log_base",
	VHOST_USER_SET_LOG_FD:            "set_log_fd",
	VHOST_USER_SET_VRING_NUM:         "set_vring_num",
	VHOST_USER_SET_VRING_ADDR:        "set_vring_addr",
	VHOST_USER_SET_VRING_BASE:        "set_vring_base",
	VHOST_USER_GET_VRING_BASE:        "get_vring_base",
	VHOST_USER_SET_VRING_KICK:        "set_vring_kick",
	VHOST_USER_SET_VRING_CALL:        "set_vring_call",
	VHOST_USER_SET_VRING_ERR:         "set_vring_err",
	VHOST_USER_GET_PROTOCOL_FEATURES: "get_protocol_features",
	VHOST_USER_SET_PROTOCOL_FEATURES: "set_protocol_features",
	VHOST_USER_GET_QUEUE_NUM:         "get_queue_num",
	VHOST_USER_SET_VRING_ENABLE:      "set_vring_enable",
	VHOST_USER_GET_CONFIG:            "get_config",
	VHOST_USER_SET_CONFIG:            "set_config",
	VHOST_USER_RESET_DEVICE:          "reset_device",
}

const (
	VHOST_USER_F_PROTOCOL_FEATURES = 1 << 30

	VHOST_USER_PROTOCOL_F_CONFIG       = 1 << 9
	VHOST_USER_PROTOCOL_F_RESET_DEVICE = 1 << 13
)

const supported_protocol_features = VHOST_USER_PROTOCOL_F_CONFIG |
	VHOST_USER_PROTOCOL_F_RESET_DEVICE

const (
	VHOST_USER_VERSION         = 0x1
	VHOST_USER_VERSION_MASK    = (0x3)
	VHOST_USER_REPLY_MASK      = (0x1 << 2)
	VHOST_USER_VRING_IDX_MASK  = (0xff)
	VHOST_USER_VRING_NOFD_MASK = (0x1 << 8)

	VHOST_USER_MEMORY_MAX_NREGIONS = 8

	// largest body a front-end sends, a full memory table
	maxBodySize = 8 + VHOST_USER_MEMORY_MAX_NREGIONS*32
)

const headerSize = 12

type UserMsgHeader struct {
	Request uint32
	Flags   uint32
	Size    uint32
}

type UserMsg struct {
	UserMsgHeader
	Body []byte
	Fds  []int
}

// fd takes the first descriptor passed with the message, or -1.
func (m *UserMsg) fd() int {
	if len(m.Fds) == 0 {
		return -1
	}

	fd := m.Fds[0]
	m.Fds = m.Fds[1:]

	return fd
}

func (m *UserMsg) need(n int) error {
	if len(m.Body) < n {
		return errors.Errorf("%s: body is %d bytes, need %d", requestNames[m.Request], len(m.Body), n)
	}
	return nil
}

func (m *UserMsg) u64() (uint64, error) {
	if err := m.need(8); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(m.Body), nil
}

type UserMemoryRegion struct {
	Guest_phys_addr uint64
	Memory_size     uint64
	Userspace_addr  uint64
	Mmap_offset     uint64
}

type UserMemory struct {
	Nregions uint32
	Padding  uint32
	Regions  []UserMemoryRegion
}

func (m *UserMsg) Memory() (*UserMemory, error) {
	if err := m.need(8); err != nil {
		return nil, err
	}

	um := &UserMemory{
		Nregions: binary.NativeEndian.Uint32(m.Body),
		Padding:  binary.NativeEndian.Uint32(m.Body[4:]),
	}

	if um.Nregions > VHOST_USER_MEMORY_MAX_NREGIONS {
		return nil, errors.Errorf("too many memory regions: %d", um.Nregions)
	}

	if err := m.need(8 + int(um.Nregions)*32); err != nil {
		return nil, err
	}

	r := m.Body[8:]
	for i := 0; i < int(um.Nregions); i++ {
		mr := UserMemoryRegion{
			Guest_phys_addr: binary.NativeEndian.Uint64(r),
			Memory_size:     binary.NativeEndian.Uint64(r[8:]),
			Userspace_addr:  binary.NativeEndian.Uint64(r[16:]),
			Mmap_offset:     binary.NativeEndian.Uint64(r[24:]),
		}

		um.Regions = append(um.Regions, mr)

		r = r[32:]
	}

	return um, nil
}

type vhostu_vring_state struct {
	Index, Num uint32
}

func (m *UserMsg) VRingState() (vhostu_vring_state, error) {
	var v vhostu_vring_state

	if err := m.need(8); err != nil {
		return v, err
	}

	v.Index = binary.NativeEndian.Uint32(m.Body)
	v.Num = binary.NativeEndian.Uint32(m.Body[4:])

	return v, nil
}

type vhostu_vring_addr struct {
	Index, Flags                                                    uint32
	Desc_user_addr, Used_user_addr, Avail_user_addr, Log_guest_addr uint64
}

func (m *UserMsg) VRingAddr() (vhostu_vring_addr, error) {
	var v vhostu_vring_addr

	err := binary.Read(bytes.NewReader(m.Body), binary.NativeEndian, &v)

	return v, err
}

// vhostu_config is the fixed part of a GET_CONFIG or SET_CONFIG body; the
// payload follows it.
type vhostu_config struct {
	Offset, Size, Flags uint32
}

const configHeaderSize = 12

func (m *UserMsg) Config() (vhostu_config, []byte, error) {
	var c vhostu_config

	if err := m.need(configHeaderSize); err != nil {
		return c, nil, err
	}

	c.Offset = binary.NativeEndian.Uint32(m.Body)
	c.Size = binary.NativeEndian.Uint32(m.Body[4:])
	c.Flags = binary.NativeEndian.Uint32(m.Body[8:])

	payload := m.Body[configHeaderSize:]
	if int(c.Size) > len(payload) {
		return c, nil, errors.Errorf("config payload is %d bytes, header says %d", len(payload), c.Size)
	}

	return c, payload[:c.Size], nil
}
