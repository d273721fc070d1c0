package utils

// ErrorPanic aborts on errors that leave the process unusable, such as a
// failed schema migration. Only called from main before workers start.
func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
