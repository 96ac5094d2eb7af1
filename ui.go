package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"chessPlay/clock"
	"chessPlay/engine"
	"chessPlay/game"
	"chessPlay/history"
	"chessPlay/rules"
	"chessPlay/status"
	"chessPlay/store"
)

const (
	squareSize   = 80
	boardOffsetX = 20
	boardOffsetY = 60
	panelX       = boardOffsetX + 8*squareSize + 30
	windowWidth  = panelX + 300
	windowHeight = boardOffsetY + 8*squareSize + 40

	btnWidth  = 200
	btnHeight = 60

	historyRows     = 16
	browserRows     = 24
	analysisTimeout = 30 * time.Second
)

var (
	lightSquare  = color.RGBA{240, 217, 181, 255}
	darkSquare   = color.RGBA{181, 136, 99, 255}
	selectedTint = color.RGBA{246, 246, 105, 160}
	destDot      = color.RGBA{40, 40, 40, 110}
	whitePiece   = color.RGBA{250, 250, 245, 255}
	blackPiece   = color.RGBA{30, 30, 30, 255}
)

var pieceLetters = map[chess.PieceType]string{
	chess.King:   "K",
	chess.Queen:  "Q",
	chess.Rook:   "R",
	chess.Bishop: "B",
	chess.Knight: "N",
	chess.Pawn:   "P",
}

// App is the ebiten front end. All game state lives in the session; App
// only keeps selection and messages.
type App struct {
	session  *game.Session
	prefs    *store.SQLite
	settings game.Settings
	depth    int
	logger   zerolog.Logger

	started      bool
	browsing     bool
	records      *history.Browser
	selected     chess.Square
	hasSelection bool
	dests        []string
	dragging     bool
	dragX, dragY int

	mu        sync.Mutex
	snap      game.Snapshot
	message   string
	analyzing bool
}

func NewApp(session *game.Session, prefs *store.SQLite, settings game.Settings, depth int, logger zerolog.Logger) *App {
	a := &App{
		session:  session,
		prefs:    prefs,
		settings: settings,
		depth:    depth,
		logger:   logger,
		snap:     session.Snapshot(),
		records:  history.NewBrowser(prefs, logger),
	}
	if a.snap.ID != "" {
		a.settings = a.snap.Settings
	}
	session.OnChange(a.onChange)
	return a
}

func (a *App) onChange(s game.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.snap.Status.Status
	a.snap = s
	if !prev.Terminal() && s.Status.Status.Terminal() {
		a.message = fmt.Sprintf("Game over: %s (%s)", s.Status.Winner.Result(), s.Status.Reason)
	}
}

// onAnalysis shows intermediate engine output while an [A] request runs.
func (a *App) onAnalysis(res engine.Analysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.analyzing {
		a.message = formatAnalysis(res)
	}
}

func (a *App) snapshot() game.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

func (a *App) setMessage(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.message = msg
}

func (a *App) currentMessage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.message
}

func (a *App) Update() error {
	if !a.started {
		if a.browsing {
			a.updateHistory()
		} else {
			a.updateSetup()
		}
		return nil
	}

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyN):
		a.session.Reset()
		a.clearSelection()
		a.setMessage("")
		a.started = false
		return nil
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		if err := a.session.Resign(); err != nil {
			a.setMessage(err.Error())
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyD):
		if err := a.session.OfferDraw(); err != nil {
			a.setMessage(err.Error())
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyA):
		a.analyze()
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		a.session.CancelAnalysis()
	}

	snap := a.snapshot()
	if snap.Status.Status != status.Playing || snap.Turn != a.settings.PlayerColor || snap.BotThinking {
		a.clearSelection()
		return nil
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		x, y := ebiten.CursorPosition()
		if sq, ok := a.squareAt(x, y); ok {
			a.press(sq, x, y)
		}
	}
	if a.dragging {
		a.dragX, a.dragY = ebiten.CursorPosition()
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) && a.dragging {
		a.dragging = false
		if sq, ok := a.squareAt(a.dragX, a.dragY); ok && sq != a.selected && a.isDest(sq) {
			a.move(sq)
		}
	}
	return nil
}

func (a *App) updateSetup() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyB):
		a.settings.Tier = a.settings.Tier.Next()
	case inpututil.IsKeyJustPressed(ebiten.KeyT):
		a.settings.TimeControl = nextTimeControl(a.settings.TimeControl)
	case inpututil.IsKeyJustPressed(ebiten.KeyEnter):
		a.startGame()
	case inpututil.IsKeyJustPressed(ebiten.KeyH):
		a.openHistory()
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		x, y := ebiten.CursorPosition()
		btnY := windowHeight/2 + 100
		if y > btnY && y < btnY+btnHeight {
			if x > windowWidth/2-btnWidth-20 && x < windowWidth/2-20 {
				a.settings.PlayerColor = chess.White
				a.startGame()
			} else if x > windowWidth/2+20 && x < windowWidth/2+20+btnWidth {
				a.settings.PlayerColor = chess.Black
				a.startGame()
			}
		}
	}
}

func nextTimeControl(tc clock.TimeControl) clock.TimeControl {
	all := clock.TimeControls()
	for i, c := range all {
		if c.ID == tc.ID {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

func (a *App) startGame() {
	if err := a.session.Start(a.settings); err != nil {
		a.setMessage(err.Error())
		return
	}
	a.started = true
	a.setMessage("")
	ctx := context.Background()
	prefs, err := a.prefs.Preferences(ctx)
	if err != nil {
		prefs = store.DefaultPreferences()
	}
	prefs.Tier = a.settings.Tier
	prefs.TimeControlID = a.settings.TimeControl.ID
	prefs.PlayerColor = a.settings.PlayerColor.String()
	if err := a.prefs.SavePreferences(ctx, prefs); err != nil {
		a.logger.Warn().Err(err).Msg("save preferences")
	}
}

func (a *App) press(sq chess.Square, x, y int) {
	if a.hasSelection && a.isDest(sq) {
		a.move(sq)
		return
	}
	dests := a.session.LegalDestinations(sq.String())
	if len(dests) == 0 {
		a.clearSelection()
		return
	}
	a.selected, a.hasSelection, a.dests = sq, true, dests
	a.dragging = true
	a.dragX, a.dragY = x, y
}

// move submits the selected piece to target. Promotions always pick a queen.
func (a *App) move(target chess.Square) {
	if !a.session.SubmitMove(a.selected.String(), target.String(), "") {
		a.logger.Debug().Str("from", a.selected.String()).Str("to", target.String()).Msg("move rejected")
	}
	a.clearSelection()
}

func (a *App) clearSelection() {
	a.hasSelection = false
	a.dests = nil
	a.dragging = false
}

func (a *App) isDest(sq chess.Square) bool {
	name := sq.String()
	for _, d := range a.dests {
		if d == name {
			return true
		}
	}
	return false
}

func (a *App) analyze() {
	a.mu.Lock()
	a.message, a.analyzing = "Analyzing...", true
	a.mu.Unlock()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
		defer cancel()
		res, err := a.session.RequestAnalysis(ctx, a.depth)
		a.mu.Lock()
		a.analyzing = false
		a.mu.Unlock()
		if err != nil {
			a.setMessage("Analysis: " + err.Error())
			return
		}
		a.setMessage(formatAnalysis(res))
	}()
}

func formatAnalysis(res engine.Analysis) string {
	score := fmt.Sprintf("%+.2f", float64(res.ScoreCP)/100)
	if res.IsMate {
		score = fmt.Sprintf("M%d", res.Mate)
	}
	line := res.PV
	if len(line) > 6 {
		line = line[:6]
	}
	return fmt.Sprintf("Eval %s (depth %d)\n%s", score, res.Depth, strings.Join(line, " "))
}

// squareAt maps window coordinates to a square, honoring board orientation.
func (a *App) squareAt(x, y int) (chess.Square, bool) {
	x -= boardOffsetX
	y -= boardOffsetY
	if x < 0 || x >= squareSize*8 || y < 0 || y >= squareSize*8 {
		return 0, false
	}
	file, rank := x/squareSize, 7-y/squareSize
	if a.flipped() {
		file, rank = 7-file, 7-rank
	}
	return chess.Square(file + rank*8), true
}

func (a *App) squareOrigin(sq chess.Square) (float32, float32) {
	file, rank := int(sq)%8, int(sq)/8
	if a.flipped() {
		file, rank = 7-file, 7-rank
	}
	return float32(boardOffsetX + file*squareSize), float32(boardOffsetY + (7-rank)*squareSize)
}

func (a *App) flipped() bool {
	return a.settings.PlayerColor == chess.Black
}

func (a *App) Draw(screen *ebiten.Image) {
	if !a.started {
		if a.browsing {
			a.drawHistory(screen)
		} else {
			a.drawSetup(screen)
		}
		return
	}

	snap := a.snapshot()
	board, err := rules.FromFEN(snap.FEN)
	if err != nil {
		ebitenutil.DebugPrintAt(screen, err.Error(), 20, 20)
		return
	}
	a.drawBoard(screen, board.Position().Board())
	a.drawPanel(screen, snap)
}

func (a *App) drawSetup(screen *ebiten.Image) {
	p := a.settings.Tier.Profile()
	ebitenutil.DebugPrintAt(screen, "chessPlay", windowWidth/2-30, windowHeight/2-90)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("Bot: %s (%s, %s)   [B] to change", p.Name, p.Description, p.Rating),
		windowWidth/2-200, windowHeight/2-40)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("Time: %s   [T] to change", a.settings.TimeControl.Name),
		windowWidth/2-200, windowHeight/2-20)
	ebitenutil.DebugPrintAt(screen, "[H] history and saved analyses", windowWidth/2-200, windowHeight/2)
	ebitenutil.DebugPrintAt(screen, "Choose your color:", windowWidth/2-60, windowHeight/2+40)

	x := float32(windowWidth/2 - btnWidth - 20)
	y := float32(windowHeight/2 + 100)
	vector.DrawFilledRect(screen, x, y, btnWidth, btnHeight, color.RGBA{200, 200, 200, 255}, false)
	ebitenutil.DebugPrintAt(screen, "Play White", int(x)+65, int(y)+22)

	x = float32(windowWidth/2 + 20)
	vector.DrawFilledRect(screen, x, y, btnWidth, btnHeight, color.RGBA{50, 50, 50, 255}, false)
	ebitenutil.DebugPrintAt(screen, "Play Black", int(x)+65, int(y)+22)

	if msg := a.currentMessage(); msg != "" {
		ebitenutil.DebugPrintAt(screen, msg, windowWidth/2-200, windowHeight/2+180)
	}
}

func (a *App) drawBoard(screen *ebiten.Image, board *chess.Board) {
	for sq := chess.A1; sq <= chess.H8; sq++ {
		x, y := a.squareOrigin(sq)
		clr := lightSquare
		if (int(sq)%8+int(sq)/8)%2 == 0 {
			clr = darkSquare
		}
		vector.DrawFilledRect(screen, x, y, squareSize, squareSize, clr, false)
		if a.hasSelection && sq == a.selected {
			vector.DrawFilledRect(screen, x, y, squareSize, squareSize, selectedTint, false)
		}
	}

	for sq := chess.A1; sq <= chess.H8; sq++ {
		piece := board.Piece(sq)
		if piece == chess.NoPiece || (a.dragging && sq == a.selected) {
			continue
		}
		x, y := a.squareOrigin(sq)
		drawPiece(screen, piece, x+squareSize/2, y+squareSize/2)
	}

	for _, d := range a.dests {
		sq, err := rules.ParseSquare(d)
		if err != nil {
			continue
		}
		x, y := a.squareOrigin(sq)
		vector.DrawFilledCircle(screen, x+squareSize/2, y+squareSize/2, squareSize/8, destDot, true)
	}

	if a.dragging {
		if piece := board.Piece(a.selected); piece != chess.NoPiece {
			drawPiece(screen, piece, float32(a.dragX), float32(a.dragY))
		}
	}
}

func drawPiece(screen *ebiten.Image, piece chess.Piece, cx, cy float32) {
	fill, ink := whitePiece, blackPiece
	if piece.Color() == chess.Black {
		fill, ink = blackPiece, whitePiece
	}
	vector.DrawFilledCircle(screen, cx, cy, squareSize*0.38, ink, true)
	vector.DrawFilledCircle(screen, cx, cy, squareSize*0.35, fill, true)
	letter := pieceLetters[piece.Type()]
	if piece.Color() == chess.Black {
		letter = strings.ToLower(letter)
	}
	ebitenutil.DebugPrintAt(screen, letter, int(cx)-3, int(cy)-8)
}

func (a *App) drawPanel(screen *ebiten.Image, snap game.Snapshot) {
	cs := a.session.Clock()
	top, bottom := chess.Black, chess.White
	if a.flipped() {
		top, bottom = chess.White, chess.Black
	}
	ebitenutil.DebugPrintAt(screen, clockLine(cs, top), boardOffsetX, 20)
	ebitenutil.DebugPrintAt(screen, clockLine(cs, bottom), boardOffsetX, boardOffsetY+8*squareSize+10)

	y := boardOffsetY
	line := func(s string) {
		ebitenutil.DebugPrintAt(screen, s, panelX, y)
		y += 20
	}

	p := snap.Settings.Tier.Profile()
	line(fmt.Sprintf("Bot: %s (%s)", p.Name, p.Rating))
	line("Time: " + snap.Settings.TimeControl.Name)
	y += 10

	switch st := snap.Status; {
	case st.Status.Terminal():
		line(fmt.Sprintf("%s: %s", st.Status, st.Winner.Result()))
	case snap.BotThinking:
		line("Bot is thinking...")
	case snap.Turn == snap.Settings.PlayerColor:
		line("Your move")
	default:
		line("Bot to move")
	}
	y += 10

	start := max(0, len(snap.History)-2*historyRows)
	start -= start % 2
	for i := start; i < len(snap.History); i += 2 {
		row := fmt.Sprintf("%3d. %-7s", i/2+1, snap.History[i])
		if i+1 < len(snap.History) {
			row += snap.History[i+1]
		}
		line(row)
	}

	y = windowHeight - 140
	for _, s := range strings.Split(a.currentMessage(), "\n") {
		line(s)
	}
	y = windowHeight - 80
	line("[A] analyze  [Esc] stop")
	line("[D] offer draw  [R] resign  [N] new game")
}

func clockLine(cs clock.State, c chess.Color) string {
	s := fmt.Sprintf("%s  %s", strings.ToUpper(c.Name()), clock.Format(cs.Remaining(c)))
	switch rem := cs.Remaining(c); {
	case rem <= clock.CriticalTime:
		s += "  !!"
	case rem <= clock.LowTime:
		s += "  !"
	}
	if cs.Running && cs.Active == c {
		s += "  <"
	}
	return s
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return windowWidth, windowHeight
}

func (a *App) openHistory() {
	if err := a.records.Refresh(context.Background()); err != nil {
		a.setMessage(err.Error())
		return
	}
	a.setMessage("")
	a.browsing = true
}

func (a *App) updateHistory() {
	ctx := context.Background()
	r := a.records
	if r.Editing() {
		r.Type(ebiten.AppendInputChars(nil))
		switch {
		case inpututil.IsKeyJustPressed(ebiten.KeyBackspace):
			r.Backspace()
		case inpututil.IsKeyJustPressed(ebiten.KeyEnter):
			if err := r.CommitEdit(ctx); err != nil {
				a.setMessage(err.Error())
			}
		case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
			r.CancelEdit()
		}
		return
	}

	var err error
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape), inpututil.IsKeyJustPressed(ebiten.KeyH):
		a.browsing = false
		a.setMessage("")
	case inpututil.IsKeyJustPressed(ebiten.KeyTab):
		r.SwitchTab()
	case inpututil.IsKeyJustPressed(ebiten.KeyUp):
		r.MoveCursor(-1)
	case inpututil.IsKeyJustPressed(ebiten.KeyDown):
		r.MoveCursor(1)
	case inpututil.IsKeyJustPressed(ebiten.KeyX), inpututil.IsKeyJustPressed(ebiten.KeyDelete):
		err = r.DeleteSelected(ctx)
	case inpututil.IsKeyJustPressed(ebiten.KeyC) && r.Tab() == history.GamesTab:
		err = r.ClearGames(ctx)
	case inpututil.IsKeyJustPressed(ebiten.KeyE):
		r.BeginEdit()
	}
	if err != nil && !errors.Is(err, history.ErrNothingSelected) {
		a.logger.Warn().Err(err).Msg("history edit failed")
		a.setMessage(err.Error())
	}
}

func (a *App) drawHistory(screen *ebiten.Image) {
	r := a.records
	y := 20
	line := func(s string) {
		ebitenutil.DebugPrintAt(screen, s, 20, y)
		y += 20
	}
	line(history.StatsLine(r.Stats()))
	y += 10
	line(fmt.Sprintf("[%s]  Tab to switch", r.Tab()))
	y += 10

	var rows []string
	if r.Tab() == history.GamesTab {
		for _, g := range r.Games() {
			rows = append(rows, history.GameLine(g))
		}
	} else {
		for _, an := range r.Analyses() {
			rows = append(rows, history.AnalysisLine(an))
		}
	}
	if len(rows) == 0 {
		line("(empty)")
	}
	start := max(0, r.Cursor()-browserRows+1)
	for i := start; i < len(rows) && i < start+browserRows; i++ {
		prefix := "  "
		if i == r.Cursor() {
			prefix = "> "
		}
		line(prefix + rows[i])
	}

	y = windowHeight - 80
	switch {
	case r.Editing():
		line("Notes: " + r.Draft() + "_")
		line("[Enter] save  [Esc] cancel")
	case r.Tab() == history.GamesTab:
		line(a.currentMessage())
		line("[Up/Down] select  [X] delete  [C] clear all  [Esc] back")
	default:
		line(a.currentMessage())
		line("[Up/Down] select  [E] edit notes  [X] delete  [Esc] back")
	}
}
