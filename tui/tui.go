package tui

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/plcmodem/config"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
)

var LogOut *tview.TextView

// snrGaugePct maps an SNR in dB onto the gauge, 40 dB being full scale.
func snrGaugePct(snr float64) float64 {
	return min(100, max(0, snr*2.5))
}

// StartUI runs the monitor until the user quits with q or Ctrl-C, then
// calls stop.
func StartUI(src Sources, tuiConf config.TuiConf, stop func()) {
	app := tview.NewApplication()

	LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	snap := &Snapshot{}
	sessionTable := tview.NewTable().SetContent(&SessionTableData{snap: snap})
	levelTable := tview.NewTable().SetContent(&LevelTableData{snap: snap})

	decoded := tview.NewTextView().SetWordWrap(true)
	decoded.SetBorder(true).SetTitle("Decoded")

	signalPlot := tvxwidgets.NewPlot()
	signalPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	signalPlot.SetMarker(tvxwidgets.PlotMarkerBraille)
	signalPlot.SetBorder(true)
	signalPlot.SetTitle("Spectrum")

	snrGauge := tvxwidgets.NewUtilModeGauge()
	snrGauge.SetLabel("SNR:          ")
	snrGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	snrGauge.SetWarnPercentage(99)
	snrGauge.SetCritPercentage(100)
	snrGauge.SetEmptyColor(tcell.ColorBlack)
	snrGauge.SetBorder(false)

	swingGauge := tvxwidgets.NewUtilModeGauge()
	swingGauge.SetLabel("Level swing:  ")
	swingGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	swingGauge.SetWarnPercentage(90)
	swingGauge.SetCritPercentage(99)
	swingGauge.SetEmptyColor(tcell.ColorBlack)
	swingGauge.SetBorder(false)

	gaugeBox := tview.NewFlex()
	gaugeBox.SetDirection(tview.FlexRow)
	gaugeBox.AddItem(snrGauge, 0, 1, false)
	gaugeBox.AddItem(swingGauge, 0, 1, false)
	gaugeBox.AddItem(levelTable, 0, 3, false)
	gaugeBox.SetTitle("Signal Stats")
	gaugeBox.SetBorder(true)

	LogOut.SetChangedFunc(func() {
		LogOut.ScrollToEnd()
		app.Draw()
	})
	LogOut.SetBorder(true).SetTitle("Log Output")
	if tuiConf.EnableLogOutput {
		log.SetOutput(LogOut)
	}

	sessionTable.SetSelectable(false, false).SetBorder(true).SetTitle("Sessions")
	levelTable.SetSelectable(false, false)

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(sessionTable, 0, 1, false)
	leftCol.AddItem(decoded, 0, 3, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 3, false)
	if tuiConf.DoFFT {
		rightCol.AddItem(signalPlot, 0, 2, false)
	}
	if tuiConf.EnableLogOutput {
		rightCol.AddItem(LogOut, 0, 2, false)
	}

	page.AddItem(leftCol, 0, 2, false)
	page.AddItem(rightCol, 0, 3, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(max(10, tuiConf.RefreshMs)) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			s := Collect(src)
			var recent []string
			if src.Sink != nil {
				recent = src.Sink.Recent()
			}
			var bins []float64
			if tuiConf.DoFFT && src.Analyzer != nil {
				bins = src.Analyzer.Spectrum()
			}

			app.QueueUpdateDraw(func() {
				*snap = s
				snrGauge.SetValue(snrGaugePct(s.Stats.CurrentSNR))
				swingGauge.SetValue(s.Swing)
				decoded.SetText(strings.Join(recent, "\n"))
				decoded.ScrollToEnd()
				if len(bins) > 0 {
					signalPlot.SetData([][]float64{bins})
				}
			})
		}
	}()

	if err := app.SetRoot(page, true).EnableMouse(true).Run(); err != nil {
		log.Fatalf("Could not start UI: %v", err)
	}
	close(done)
	log.SetOutput(os.Stderr)
	if stop != nil {
		stop()
	}
}
