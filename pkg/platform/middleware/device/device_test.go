package device

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"shikkha/pkg/requestcontext"
)

type DeviceSuite struct {
	suite.Suite
}

func TestDeviceSuite(t *testing.T) {
	suite.Run(t, new(DeviceSuite))
}

func (s *DeviceSuite) TestParse() {
	s.Run("empty user agent is unknown", func() {
		d := Parse("")
		s.Equal("unknown", d.Browser)
		s.Equal("unknown on unknown", DisplayName(d))
	})

	s.Run("chrome on desktop", func() {
		d := Parse("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		s.Equal("Chrome", d.Browser)
		s.False(d.Mobile)
	})

	s.Run("safari on iphone is mobile", func() {
		d := Parse("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
		s.True(d.Mobile)
		s.Contains(DisplayName(d), "iPhone")
	})

	s.Run("crawler is a bot", func() {
		d := Parse("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		s.True(d.Bot)
	})
}

func (s *DeviceSuite) TestMiddleware() {
	var got requestcontext.Device
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.DeviceInfo(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	s.Equal("Firefox", got.Browser)
}
