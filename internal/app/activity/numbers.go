package activity

import "strconv"

// NumberWavs returns the voice files that speak n: direct words for 0-20,
// tens plus units up to 99, and hundreds recursively above that.
func NumberWavs(n int) []string {
	if n < 0 {
		n = 0
	}
	switch {
	case n <= 20:
		return []string{strconv.Itoa(n) + ".wav"}
	case n < 100:
		out := []string{strconv.Itoa(n/10*10) + ".wav"}
		if ones := n % 10; ones != 0 {
			out = append(out, strconv.Itoa(ones)+".wav")
		}
		return out
	default:
		out := append(NumberWavs(n/100), "hundred.wav")
		if rest := n % 100; rest != 0 {
			out = append(out, NumberWavs(rest)...)
		}
		return out
	}
}

// ReportFiles returns the full spoken activity report for n minutes:
// the "activity" preamble, the count, then the unit (singular at one).
func ReportFiles(n int) []string {
	out := append([]string{"activity.wav"}, NumberWavs(n)...)
	if n == 1 {
		return append(out, "minute.wav")
	}
	return append(out, "minutes.wav")
}
