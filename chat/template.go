package chat

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/onnwee/chzzk-bot/chzzkapi"
	"github.com/onnwee/chzzk-bot/telemetry"
)

// The four external documents a reply template can draw from. Each is fetched
// at most once per resolution, and only when a placeholder needs it.
type document int

const (
	docLiveDetail document = iota
	docLiveStatus
	docChannelProfile
	docUserProfile
	docCount

	// docNone marks placeholders derived from the message itself.
	docNone document = -1
)

var documentNames = [docCount]string{"live-detail", "live-status", "channel-profile", "user-profile"}

// placeholder binds one bracketed token to its source document and extraction.
// Extractions run only when the source document fetch succeeded, so they can
// assume a parsed (possibly empty) document.
type placeholder struct {
	token string
	doc   document
	value func(rc *replyContext) string
}

func docField(path string) func(rc *replyContext) string {
	return func(rc *replyContext) string { return rc.doc.Get(path).String() }
}

// placeholders is evaluated in order against the template. Every token
// occurrence is replaced, and a failed source resolves to an empty string
// without blocking the other placeholders.
var placeholders = []placeholder{
	{"[nickname]", docNone, func(rc *replyContext) string { return rc.msg.Nickname }},
	{"[message]", docNone, func(rc *replyContext) string { return rc.msg.Text }},
	{"[channelName]", docChannelProfile, docField("content.nickname")},
	{"[title]", docLiveStatus, docField("content.liveTitle")},
	{"[uptime]", docLiveDetail, (*replyContext).uptime},
	{"[concurrentUserCount]", docLiveStatus, docField("content.concurrentUserCount")},
	{"[accumulateCount]", docLiveStatus, docField("content.accumulateCount")},
	{"[categoryType]", docLiveStatus, docField("content.categoryType")},
	{"[liveCategory]", docLiveStatus, docField("content.liveCategory")},
	{"[liveCategoryValue]", docLiveStatus, docField("content.liveCategoryValue")},
	{"[chatActive]", docLiveDetail, docField("content.chatActive")},
	{"[chatAvailableGroup]", docLiveDetail, docField("content.chatAvailableGroup")},
	{"[paidPromotion]", docLiveDetail, docField("content.paidPromotion")},
	{"[followDate]", docUserProfile, (*replyContext).followDate},
}

// replyContext is the ephemeral state for one template resolution: the
// triggering message plus whichever documents were fetched for it. doc is the
// document currently bound for a docField extraction.
type replyContext struct {
	msg  ChatMessage
	docs [docCount]gjson.Result
	errs [docCount]error
	doc  gjson.Result

	uptimeFormat string
	now          func() time.Time
}

// Resolver expands reply templates against the platform's live-status APIs.
type Resolver struct {
	API       *chzzkapi.Client
	ChannelID string

	// UptimeFormat substitutes %hours%/%minutes%/%seconds% tokens.
	UptimeFormat string

	Now func() time.Time // test hook
}

// Resolve expands every recognized placeholder in template. Documents are
// fetched concurrently and each failure is isolated to the placeholders it
// feeds; the reply is always produced.
func (rv *Resolver) Resolve(ctx context.Context, template string, msg ChatMessage, chatChannelID string) string {
	start := time.Now()
	defer func() {
		telemetry.ObserveResolveDuration(time.Since(start))
	}()

	rc := &replyContext{msg: msg, uptimeFormat: rv.UptimeFormat, now: rv.Now}
	if rc.uptimeFormat == "" {
		rc.uptimeFormat = "%hours% hours %minutes% minutes %seconds% seconds"
	}
	if rc.now == nil {
		rc.now = time.Now
	}

	var need [docCount]bool
	for _, p := range placeholders {
		if p.doc != docNone && strings.Contains(template, p.token) {
			need[p.doc] = true
		}
	}

	var wg sync.WaitGroup
	for d := document(0); d < docCount; d++ {
		if !need[d] {
			continue
		}
		wg.Add(1)
		go func(d document) {
			defer wg.Done()
			rc.docs[d], rc.errs[d] = rv.fetch(ctx, d, msg, chatChannelID)
			if rc.errs[d] != nil {
				telemetry.IncAPIFetchFailure(documentNames[d])
				slog.Warn("document fetch failed; placeholders will resolve empty",
					slog.String("document", documentNames[d]), slog.Any("err", rc.errs[d]))
			}
		}(d)
	}
	wg.Wait()

	out := template
	for _, p := range placeholders {
		if !strings.Contains(out, p.token) {
			continue
		}
		value := ""
		if p.doc == docNone {
			value = p.value(rc)
		} else if rc.errs[p.doc] == nil {
			rc.doc = rc.docs[p.doc]
			value = p.value(rc)
		}
		out = strings.ReplaceAll(out, p.token, value)
	}
	return out
}

func (rv *Resolver) fetch(ctx context.Context, d document, msg ChatMessage, chatChannelID string) (gjson.Result, error) {
	switch d {
	case docLiveDetail:
		return rv.API.LiveDetail(ctx, rv.ChannelID)
	case docLiveStatus:
		return rv.API.LiveStatus(ctx, rv.ChannelID)
	case docChannelProfile:
		return rv.API.ProfileCard(ctx, chatChannelID, rv.ChannelID)
	case docUserProfile:
		return rv.API.ProfileCard(ctx, chatChannelID, msg.UserID)
	}
	return gjson.Result{}, nil
}

// uptime renders elapsed broadcast time from the live-detail document:
// "OFFLINE" once the stream reports ENDED, otherwise the elapsed time since
// the playback start timestamp embedded in livePlaybackJson.
func (rc *replyContext) uptime() string {
	detail := rc.docs[docLiveDetail]
	if detail.Get("content.status").String() == "ENDED" {
		return "OFFLINE"
	}
	playback := detail.Get("content.livePlaybackJson").String()
	start := gjson.Get(playback, "live.start")
	var startAt time.Time
	switch {
	case start.Type == gjson.Number:
		startAt = time.UnixMilli(start.Int())
	case start.String() != "":
		t, err := time.ParseInLocation("2006-01-02 15:04:05", start.String(), time.Local)
		if err != nil {
			slog.Warn("unparseable playback start", slog.String("start", start.String()), slog.Any("err", err))
			return ""
		}
		startAt = t
	default:
		return ""
	}
	return formatUptime(rc.uptimeFormat, rc.now().Sub(startAt))
}

// followDate reads the requesting user's follow date, defaulting to the
// literal "not following" when the profile carries no following object.
func (rc *replyContext) followDate() string {
	following := rc.docs[docUserProfile].Get("content.streamingProperty.following")
	if !following.Exists() {
		return "not following"
	}
	return following.Get("followDate").String()
}

func formatUptime(format string, elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	hours := int(elapsed.Hours())
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60
	return strings.NewReplacer(
		"%hours%", strconv.Itoa(hours),
		"%minutes%", strconv.Itoa(minutes),
		"%seconds%", strconv.Itoa(seconds),
	).Replace(format)
}
