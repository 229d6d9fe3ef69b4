// Package fsrs implements the forgetting model behind review scheduling.
//
// The model tracks two memory variables per card, difficulty (1..10) and
// stability (days until recall probability decays to 90% of its starting
// value), and derives retrievability and the next interval from them. All
// functions are pure; numeric edge cases are clamped rather than rejected.
//
//	m, err := fsrs.NewModel(fsrs.Config{})
//	d, s, _ := m.InitDS(fsrs.Good)
//	days := m.NextInterval(s)
package fsrs
