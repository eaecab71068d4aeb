package credential

// Mask hides the middle of a secret for log output, keeping the first and
// last four characters. Secrets of eight characters or fewer are fully
// masked.
func Mask(secret string) string {
	r := []rune(secret)
	if len(r) <= 8 {
		return "***"
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}
