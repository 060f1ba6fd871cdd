package render

import (
	"context"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/models"
	"github.com/aura-webinar/liveqa/internal/notice"
	"github.com/aura-webinar/liveqa/internal/realtime"
)

const dashboardQueue = 64

// Controls are the actions reachable from the keyboard.
type Controls interface {
	Vote(id models.QuestionID)
	MarkAnswered(id models.QuestionID)
}

// Dashboard is a terminal view of the page. The Renderer methods only queue
// work; drawing happens on the goroutine running Run.
type Dashboard struct {
	updates  chan realtime.Update
	notices  chan []notice.Notice
	channels chan realtime.ChannelInfo
	logger   *zap.Logger
}

// NewDashboard creates a dashboard. Nothing is drawn until Run.
func NewDashboard(logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		updates:  make(chan realtime.Update, dashboardQueue),
		notices:  make(chan []notice.Notice, dashboardQueue),
		channels: make(chan realtime.ChannelInfo, dashboardQueue),
		logger:   logger,
	}
}

func (d *Dashboard) Render(u realtime.Update) {
	select {
	case d.updates <- u:
	default:
		d.logger.Debug("dashboard queue full, update dropped", zap.String("topic", u.Topic))
	}
}

func (d *Dashboard) Notices(ns []notice.Notice) {
	select {
	case d.notices <- ns:
	default:
	}
}

func (d *Dashboard) Channel(info realtime.ChannelInfo) {
	select {
	case d.channels <- info:
	default:
	}
}

// Run takes over the terminal until ctx is done or the user quits with q.
// controls returns the actions of the mounted view, or nil.
func (d *Dashboard) Run(ctx context.Context, controls func() Controls) error {
	if err := ui.Init(); err != nil {
		return err
	}
	defer ui.Close()

	m := newModel()

	header := widgets.NewParagraph()
	header.Title = "Live Q&A"

	list := widgets.NewList()
	list.TextStyle = ui.NewStyle(ui.ColorWhite)
	list.SelectedRowStyle = ui.NewStyle(ui.ColorBlack, ui.ColorYellow)
	list.WrapText = false

	footer := widgets.NewParagraph()
	footer.Title = "v vote  a answered  s sort  u unanswered  q quit"

	grid := ui.NewGrid()
	grid.Set(
		ui.NewRow(0.2, header),
		ui.NewRow(0.65, list),
		ui.NewRow(0.15, footer),
	)
	resize := func(w, h int) {
		grid.SetRect(0, 0, w, h)
		ui.Clear()
	}
	draw := func() {
		header.Text = m.header()
		list.Title = m.title()
		list.Rows = m.rows()
		if list.SelectedRow >= len(list.Rows) {
			list.SelectedRow = max(len(list.Rows)-1, 0)
		}
		footer.Text = m.noticeText()
		ui.Render(grid)
	}
	selected := func() (models.QuestionID, bool) {
		qs := m.questions()
		if list.SelectedRow < 0 || list.SelectedRow >= len(qs) {
			return 0, false
		}
		return qs[list.SelectedRow].ID, true
	}

	resize(ui.TerminalDimensions())
	draw()

	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-d.updates:
			m.apply(u)
		case ns := <-d.notices:
			m.notices = ns
		case info := <-d.channels:
			m.channels[info.Name] = info
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "j", "<Down>":
				list.ScrollDown()
			case "k", "<Up>":
				list.ScrollUp()
			case "s":
				m.byVote = !m.byVote
				list.ScrollTop()
			case "u":
				m.unansweredOnly = !m.unansweredOnly
				list.ScrollTop()
			case "v", "a":
				c := controls()
				id, ok := selected()
				if c == nil || !ok {
					break
				}
				if e.ID == "v" {
					c.Vote(id)
				} else {
					c.MarkAnswered(id)
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				resize(payload.Width, payload.Height)
			}
		}
		draw()
	}
}
