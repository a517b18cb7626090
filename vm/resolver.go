package vm

// ImportResolver maps a (module, field, signature) triple declared by the
// guest module to an opaque token chosen by the host. The same token is
// handed back verbatim in ExecOutcome.Interrupted.ID whenever the guest
// calls through that import, so the caller (the extrinsics layer) can
// classify the call without re-parsing names on every invocation.
//
// A resolver returns ok=false for anything it doesn't recognize, which New
// turns into ErrUnresolvedImport.
type ImportResolver func(module, field string, sig Signature) (token uint64, ok bool)
