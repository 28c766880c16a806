package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/plcmodem/analyzer"
	"github.com/jrwynneiii/plcmodem/datalink"
	"github.com/jrwynneiii/plcmodem/scheduler"
	"github.com/rivo/tview"
)

// Sources are the parts of a running modem the monitor reads. Any of them
// may be nil.
type Sources struct {
	TX       *scheduler.TX
	RX       *scheduler.RX
	Encoder  *scheduler.EncoderClient
	Analyzer *analyzer.Analyzer
	Sink     *datalink.Sink
}

type Snapshot struct {
	TXState   scheduler.State
	RXState   scheduler.State
	TXErr     error
	RXErr     error
	Sent      int64
	Bytes     int
	Lines     int
	Batches   int
	Stats     analyzer.Stats
	Peak      float64
	// Swing is the peak to peak level of the last buffer in percent of
	// full scale.
	Swing float64
}

func Collect(src Sources) Snapshot {
	var s Snapshot
	if src.TX != nil {
		s.TXState = src.TX.State()
		s.TXErr = src.TX.Err()
	}
	if src.RX != nil {
		s.RXState = src.RX.State()
		s.RXErr = src.RX.Err()
	}
	if src.Encoder != nil {
		s.Sent = src.Encoder.Sent.Load()
	}
	if src.Sink != nil {
		s.Bytes, s.Lines, s.Batches = src.Sink.Counters()
	}
	if src.Analyzer != nil {
		s.Stats = src.Analyzer.Stats()
		s.Peak = src.Analyzer.PeakFrequency()
		l := src.Analyzer.Level
		s.Swing = min(100, max(0, 50*(l.Float(s.Stats.Max)-l.Float(s.Stats.Min))))
	}
	return s
}

type SessionTableData struct {
	tview.TableContentReadOnly
	snap *Snapshot
}

type LevelTableData struct {
	tview.TableContentReadOnly
	snap *Snapshot
}

func stateCell(st scheduler.State, err error) *tview.TableCell {
	color := tcell.ColorGreen
	switch {
	case err != nil:
		color = tcell.ColorRed
	case st == scheduler.Idle:
		color = tcell.ColorGray
	case st != scheduler.Running:
		color = tcell.ColorYellow
	}
	text := st.String()
	if err != nil {
		text += ": " + err.Error()
	}
	return tview.NewTableCell(text).SetTextColor(color)
}

func (d *SessionTableData) GetRowCount() int {
	return 6
}

func (d *SessionTableData) GetColumnCount() int {
	return 2
}

func (d *SessionTableData) GetCell(row, column int) *tview.TableCell {
	labels := []string{"TX session:", "RX session:", "Buffers sent:", "Bytes decoded:", "Lines decoded:", "Batches:"}
	if row < 0 || row >= len(labels) {
		return tview.NewTableCell("ERROR")
	}
	if column == 0 {
		return tview.NewTableCell("[lightskyblue]" + labels[row])
	}
	switch row {
	case 0:
		return stateCell(d.snap.TXState, d.snap.TXErr)
	case 1:
		return stateCell(d.snap.RXState, d.snap.RXErr)
	case 2:
		return tview.NewTableCell(fmt.Sprintf("%d", d.snap.Sent))
	case 3:
		return tview.NewTableCell(fmt.Sprintf("%d", d.snap.Bytes))
	case 4:
		return tview.NewTableCell(fmt.Sprintf("%d", d.snap.Lines))
	}
	return tview.NewTableCell(fmt.Sprintf("%d", d.snap.Batches))
}

func (l *LevelTableData) GetRowCount() int {
	return 5
}

func (l *LevelTableData) GetColumnCount() int {
	return 2
}

func (l *LevelTableData) GetCell(row, column int) *tview.TableCell {
	s := l.snap.Stats
	rows := [][2]string{
		{"Buffers analyzed:", fmt.Sprintf("%d", s.Buffers)},
		{"Level min/max:", fmt.Sprintf("%d / %d", s.Min, s.Max)},
		{"Level mean:", fmt.Sprintf("%.1f", s.Mean)},
		{"SNR avg/peak:", fmt.Sprintf("%.1f / %.1f dB", s.AvgSNR, s.PeakSNR)},
		{"Spectrum peak:", fmt.Sprintf("%.0f Hz", l.snap.Peak)},
	}
	if row < 0 || row >= len(rows) || column < 0 || column > 1 {
		return tview.NewTableCell("ERROR")
	}
	if column == 0 {
		return tview.NewTableCell("[lightskyblue]" + rows[row][0])
	}
	return tview.NewTableCell(rows[row][1])
}
