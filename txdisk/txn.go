package txdisk

// Txn is a scoped handle over a disk transaction: rollback unless
// explicitly committed.
//
//	txn := txdisk.Begin(d)
//	defer txn.Release()
//	...
//	txn.Commit()
type Txn struct {
	d    *Disk
	done bool
}

func Begin(d *Disk) *Txn {
	d.BeginTransaction()
	return &Txn{d: d}
}

// Commit flushes the transaction. Further writes go straight to the
// device.
func (txn *Txn) Commit() {
	if txn.done {
		panic("Commit: transaction already closed")
	}
	txn.d.Commit()
	txn.done = true
}

// Release rolls the transaction back if it has not been committed. It
// is a no-op after Commit, so it is safe to defer unconditionally.
func (txn *Txn) Release() {
	if txn.done {
		return
	}
	txn.d.Rollback()
	txn.done = true
}
