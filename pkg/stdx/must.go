package stdx

// Must1 returns v when err is nil and panics otherwise. It is meant for
// program setup where a failure leaves nothing sensible to continue with.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
