package gem

import "sync"

// Bank is raw access to a GEM register window. Implementations perform a
// single 32-bit access per call and give no atomicity across calls.
type Bank interface {
	Read(r Reg) uint32
	Write(r Reg, v uint32)
}

// Regs serializes access to a Bank so that composite updates, such as a
// read-modify-write or a 64-bit address split across two registers, are
// never interleaved with another writer going through the same Regs.
type Regs struct {
	mu   sync.Mutex
	bank Bank
}

func NewRegs(b Bank) *Regs {
	return &Regs{bank: b}
}

func (r *Regs) Read(reg Reg) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.bank.Read(reg)
}

func (r *Regs) Write(reg Reg, v uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bank.Write(reg, v)
}

// Or sets bits in reg and returns the value written.
func (r *Regs) Or(reg Reg, bits uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.bank.Read(reg) | bits
	r.bank.Write(reg, v)
	return v
}

// AndNot clears bits in reg and returns the value written.
func (r *Regs) AndNot(reg Reg, bits uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.bank.Read(reg) &^ bits
	r.bank.Write(reg, v)
	return v
}

// SetField replaces field f of reg with x.
func (r *Regs) SetField(reg Reg, f Field, x uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bank.Write(reg, f.Set(r.bank.Read(reg), x))
}

// Write64 programs a 64-bit address into a low/high register pair. The low
// word is written first. The two writes are ordered but not atomic towards
// the hardware.
func (r *Regs) Write64(lo, hi Reg, v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bank.Write(lo, uint32(v))
	r.bank.Write(hi, uint32(v>>32))
}

// Read64 reads a low/high register pair.
func (r *Regs) Read64(lo, hi Reg) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return uint64(r.bank.Read(lo)) | uint64(r.bank.Read(hi))<<32
}

// Do runs fn with exclusive access to the underlying bank.
func (r *Regs) Do(fn func(b Bank)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(r.bank)
}

// MemBank is a register window backed by plain memory, with no side
// effects on access.
type MemBank [NumRegs]uint32

func (m *MemBank) Read(r Reg) uint32 {
	return m[r]
}

func (m *MemBank) Write(r Reg, v uint32) {
	m[r] = v
}
