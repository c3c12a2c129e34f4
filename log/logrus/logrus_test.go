package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/chunkcache"
)

func TestLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Info("purged", chunkcache.Fields{"removed": 3, "err": errors.New("partial")})

	e := hook.LastEntry()
	if e == nil || e.Message != "purged" || e.Level != logrus.InfoLevel {
		t.Fatalf("entry = %+v", e)
	}
	if e.Data["component"] != "chunkcache" || e.Data["removed"] != 3 {
		t.Fatalf("data = %v", e.Data)
	}
	if err, _ := e.Data[logrus.ErrorKey].(error); err == nil || err.Error() != "partial" {
		t.Fatalf("error field = %v", e.Data[logrus.ErrorKey])
	}
}
