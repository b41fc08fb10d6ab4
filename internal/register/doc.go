// Package register implements the Register Store: a single 32-bit signed
// register guarded by a binary semaphore.
//
// The store exposes two parallel interfaces over the same value:
//
//   - Binary: Read and Write transfer exactly Width bytes in native byte
//     order through a Buffer. Wrong-sized transfers move zero bytes and are
//     not errors.
//   - Text: Show formats the value as decimal followed by a newline, and
//     StoreText parses the leading decimal digits of its input.
//
// Every accessor acquires the same semaphore, so readers and writers are
// mutually exclusive. Acquisition is interruptible through the context: a
// caller whose context is cancelled before it obtains the semaphore gets
// ErrInterrupted and the register is left untouched.
//
// # Usage
//
//	store := register.New()
//	h := store.Open()
//	defer h.Close()
//
//	n, err := h.Write(ctx, register.Bytes(register.Encode(42)))
//	text, err := store.Show(ctx) // "42\n"
//
// There is no package-level store. Each device instance constructs its own
// and passes it by reference to the adapters that expose it.
package register
