package trace

// Hooks are optional callbacks invoked synchronously on scope transitions.
// A panicking hook is reported through the fallback logger.
type Hooks struct {
	OnOpen      func(*Scope)
	OnStart     func(*Scope)
	OnInterrupt func(*Scope)
	OnResume    func(*Scope)
	OnDispose   func(*Scope)
}

// MergeHooks combines several hook sets; callbacks run in argument order.
func MergeHooks(all ...Hooks) Hooks {
	pick := func(get func(Hooks) func(*Scope)) func(*Scope) {
		var fns []func(*Scope)
		for _, h := range all {
			if fn := get(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		switch len(fns) {
		case 0:
			return nil
		case 1:
			return fns[0]
		}
		return func(s *Scope) {
			for _, fn := range fns {
				fn(s)
			}
		}
	}
	return Hooks{
		OnOpen:      pick(func(h Hooks) func(*Scope) { return h.OnOpen }),
		OnStart:     pick(func(h Hooks) func(*Scope) { return h.OnStart }),
		OnInterrupt: pick(func(h Hooks) func(*Scope) { return h.OnInterrupt }),
		OnResume:    pick(func(h Hooks) func(*Scope) { return h.OnResume }),
		OnDispose:   pick(func(h Hooks) func(*Scope) { return h.OnDispose }),
	}
}

func (st *Stack) fire(op string, fn func(*Scope), s *Scope) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			st.fallback.Error("trace hook failed", "op", op, "scope", s.Name(), "panic", r)
		}
	}()
	fn(s)
}
