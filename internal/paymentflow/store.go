package paymentflow

import "strings"

// store is the in-memory record table the state machine owns exclusively.
// Grounded on the teacher's MemoryTxStore: a mutex-guarded map returning
// deep copies on every read, plus a secondary index (there, by nothing; the
// payment core adds an address index since address lookup is a first-class
// query per spec §4.4).
//
// store is not itself exported: every mutation must go through the
// Machine, which enforces the CAS and transition-matrix contracts. Callers
// outside this package only ever see cloned *Payment values.
type store struct {
	byID      map[string]*Payment
	byAddress map[string]string // lowercase(address) -> id
}

func newStore() *store {
	return &store{
		byID:      make(map[string]*Payment),
		byAddress: make(map[string]string),
	}
}

// get returns the live (uncloned) record for id. Callers inside this
// package only, and must not leak the pointer outward.
func (s *store) get(id string) (*Payment, bool) {
	p, ok := s.byID[id]
	return p, ok
}

func (s *store) getByAddress(address string) (*Payment, bool) {
	id, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return nil, false
	}
	return s.get(id)
}

func (s *store) exists(id string) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *store) addressTaken(address string) bool {
	_, ok := s.byAddress[strings.ToLower(address)]
	return ok
}

func (s *store) put(p *Payment) {
	s.byID[p.ID] = p
	s.byAddress[strings.ToLower(p.PaymentAddress)] = p.ID
}

func (s *store) all() []*Payment {
	out := make([]*Payment, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	return out
}

func (s *store) count() int {
	return len(s.byID)
}

// clear resets the store. Exposed by the Machine for tests only, mirroring
// the teacher's Clean() on MemoryTxStore.
func (s *store) clear() {
	s.byID = make(map[string]*Payment)
	s.byAddress = make(map[string]string)
}
