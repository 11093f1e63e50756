package paymentflow

// GetPayment returns a cloned copy of the payment with id, or
// CodeUnknownPayment if it does not exist.
func (m *Machine) GetPayment(id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.store.get(id)
	if !ok {
		return nil, newError(CodeUnknownPayment, "payment %s not found", id)
	}
	return p.clone(), nil
}

// GetPaymentByAddress looks up a payment by its receiving address,
// case-insensitively.
func (m *Machine) GetPaymentByAddress(address string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.store.getByAddress(address)
	if !ok {
		return nil, newError(CodeUnknownPayment, "no payment found for address %s", address)
	}
	return p.clone(), nil
}

// GetPaymentsByState returns cloned copies of every payment currently in
// state s.
func (m *Machine) GetPaymentsByState(s State) []*Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Payment
	for _, p := range m.store.all() {
		if p.State == s {
			out = append(out, p.clone())
		}
	}
	return out
}

// GetPaymentsByWorkspace returns cloned copies of every payment belonging
// to workspaceID.
func (m *Machine) GetPaymentsByWorkspace(workspaceID string) []*Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Payment
	for _, p := range m.store.all() {
		if p.WorkspaceID == workspaceID {
			out = append(out, p.clone())
		}
	}
	return out
}

// GetStateDistribution returns a zero-filled histogram over every state in
// the state set.
func (m *Machine) GetStateDistribution() StateDistribution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dist := newStateDistribution()
	for _, p := range m.store.all() {
		dist[p.State]++
	}
	return dist
}

// TotalPayments returns the number of payment records tracked, regardless
// of state.
func (m *Machine) TotalPayments() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.count()
}

// ListAll returns cloned copies of every tracked payment. This is a
// supplement to the query set named in spec §4.4/§6: the reconciler (and
// any collaborator that wants a full snapshot rather than a by-state or
// by-workspace slice) needs it to walk the whole population.
func (m *Machine) ListAll() []*Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Payment, 0, m.store.count())
	for _, p := range m.store.all() {
		out = append(out, p.clone())
	}
	return out
}

// Clear resets the machine to empty. Reserved for tests, mirroring the
// teacher's MemoryTxStore.Clean and spec §9's "explicit new/reset used
// only by tests".
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.clear()
}

// MarkReconciled sets the reconciled flag and timestamp on the payment with
// id, if it exists and is not already reconciled; it does not check the
// payment's state. The reconciler calls it for Completed payments, and it
// is the only field update made outside of the transition machinery.
func (m *Machine) MarkReconciled(id string, now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.store.get(id)
	if !ok || p.Reconciled {
		return
	}
	p.Reconciled = true
	n := now
	p.ReconciledAt = &n
}
