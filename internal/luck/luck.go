// Package luck computes a per-user daily luck score.
//
// A score is the integer mean of ten draws in [1,200] and is fixed for the
// rest of the (user, date) pair once computed.
package luck

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	logx "memebot/pkg/logx"
)

const (
	draws    = 10
	maxDraw  = 200
	dayStamp = "2006-01-02"
)

// Cache stores one score per (user, day). Claim keeps the first stored score
// and returns it; fresh is true when score was the one stored.
type Cache interface {
	Claim(ctx context.Context, userID int64, day string, score int, ttl time.Duration) (stored int, fresh bool, err error)
}

type Tier struct {
	Max      int // inclusive upper bound of the tier
	Emoji    string
	Comments []string
}

// Tiers are ordered by Max; the last one catches everything above.
var Tiers = []Tier{
	{Max: 22, Emoji: "😢", Comments: []string{
		"Сегодня совсем не повезло. Отдохни и попробуй завтра.",
		"Не бери всё близко к сердцу, завтра будет лучше.",
		"Кажется, удача сегодня решила взять выходной.",
		"Лучше не принимать важных решений. Просто отдохни.",
		"Тяжёлый день, но это временно. Не сдавайся!",
	}},
	{Max: 60, Emoji: "🙁", Comments: []string{
		"Не самый удачный день, но всё можно исправить.",
		"День не слишком удачный, но он всё же твой.",
		"Проблемы приходят и уходят. Завтра будет лучше.",
		"Будь осторожен, но не теряй надежды.",
		"Сегодняшний день учит терпению. Это тоже важно!",
	}},
	{Max: 100, Emoji: "😐", Comments: []string{
		"День ниже среднего, но в твоих силах сделать его лучше.",
		"Не лучший день, но он всё же движется вперёд.",
		"Иногда просто плыть по течению лучший выбор.",
		"Пусть это будет день отдыха и размышлений.",
		"Не ожидай слишком многого, и ты избежишь разочарований.",
	}},
	{Max: 140, Emoji: "🙂", Comments: []string{
		"Средний уровень удачи. Всё идёт своим чередом.",
		"Хороший день для небольших достижений.",
		"Не торопись, и всё получится.",
		"День пройдёт ровно, наслаждайся этим моментом.",
		"Идеальное время для планирования и подготовки.",
	}},
	{Max: 160, Emoji: "😃", Comments: []string{
		"День с хорошим потенциалом. Используй его!",
		"Удача с тобой, лови момент.",
		"Прекрасный день для новых идей и проектов.",
		"Всё получится, главное верить в себя.",
		"Ты на правильном пути. Двигайся вперёд!",
	}},
	{Max: 190, Emoji: "😄", Comments: []string{
		"Отличный день для свершений. Всё в твоих руках!",
		"Ты словно магнит для удачи сегодня!",
		"Всё, за что ты берёшься, приносит успех.",
		"Смело берись за сложные задачи, они тебе по плечу.",
		"Этот день обещает быть незабываемым. Наслаждайся!",
	}},
	{Max: maxDraw, Emoji: "😍", Comments: []string{
		"Ты просто невероятно удачлив! Воспользуйся этим шансом.",
		"Сегодня твой день! Всё складывается идеально.",
		"Кажется, сама Вселенная работает на тебя.",
		"Удача улыбается тебе во всём. Не упусти этот момент!",
		"Ты на вершине мира! Всё получается легко и просто.",
	}},
}

// TierOf returns the tier a score falls into.
func TierOf(score int) Tier {
	for _, t := range Tiers {
		if score <= t.Max {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// Reading is the result of one /luck request.
type Reading struct {
	Score int
	Fresh bool // computed by this request
	Day   string
}

// Percent renders the score as a percentage with one decimal, e.g. "71.5".
func (r Reading) Percent() string {
	return strconv.FormatFloat(float64(r.Score)/2, 'f', 1, 64)
}

// Text renders the user reply. Repeat readings get a short reminder.
func (r Reading) Text(pick func(n int) int) string {
	if !r.Fresh {
		return "Твой уровень удачи на сегодня уже определён: " + r.Percent() + "% 🍀"
	}
	t := TierOf(r.Score)
	if pick == nil {
		pick = rand.IntN
	}
	return "Сегодня твой средний уровень удачи: " + r.Percent() + "% " + t.Emoji + "\n" + t.Comments[pick(len(t.Comments))]
}

type Service struct {
	cache Cache
	loc   *time.Location
	log   logx.Logger

	now  func() time.Time
	draw func() int // one draw in [1,maxDraw]
}

func NewService(cache Cache, loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cache: cache,
		loc:   loc,
		log:   log.With(logx.String("comp", "luck")),
		now:   time.Now,
		draw:  func() int { return rand.IntN(maxDraw) + 1 },
	}
}

// Score computes a fresh score without touching the cache.
func (s *Service) Score() int {
	total := 0
	for i := 0; i < draws; i++ {
		total += s.draw()
	}
	return total / draws
}

// Read returns today's reading for userID, computing it on first use.
func (s *Service) Read(ctx context.Context, userID int64) (Reading, error) {
	now := s.now().In(s.loc)
	day := now.Format(dayStamp)
	y, m, d := now.Date()
	ttl := time.Date(y, m, d+1, 0, 0, 0, 0, s.loc).Sub(now)

	stored, fresh, err := s.cache.Claim(ctx, userID, day, s.Score(), ttl)
	if err != nil {
		return Reading{}, err
	}
	if fresh {
		s.log.Debug("luck computed", logx.Int64("user_id", userID), logx.Int("score", stored), logx.String("day", day))
	}
	return Reading{Score: stored, Fresh: fresh, Day: day}, nil
}
