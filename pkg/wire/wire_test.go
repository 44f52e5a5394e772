package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Request
		wantErr error
	}{
		{name: "configure", line: "CFG 1 14", want: Request{Op: OpConfigure, Channel: 1, Pin: 14}},
		{name: "count", line: "CNT 2", want: Request{Op: OpCount, Channel: 2}},
		{name: "reset", line: "RST 0", want: Request{Op: OpReset}},
		{name: "pause", line: "PAU 7", want: Request{Op: OpPause, Channel: 7}},
		{name: "level high", line: "LVL 5 1", want: Request{Op: OpLevel, Pin: 5, High: true}},
		{name: "level low", line: "LVL 5 0", want: Request{Op: OpLevel, Pin: 5}},
		{name: "lower case and whitespace", line: "  cnt 3 \r", want: Request{Op: OpCount, Channel: 3}},
		{name: "empty", line: "   ", wantErr: ErrEmpty},
		{name: "unknown op", line: "FOO 1", wantErr: ErrUnknownOp},
		{name: "configure missing pin", line: "CFG 1", wantErr: ErrArgCount},
		{name: "count extra arg", line: "CNT 1 2", wantErr: ErrArgCount},
		{name: "channel out of range", line: "CNT 256", wantErr: ErrArgument},
		{name: "non numeric pin", line: "CFG 1 x", wantErr: ErrArgument},
		{name: "bad level", line: "LVL 5 2", wantErr: ErrArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestString(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{Request{Op: OpConfigure, Channel: 1, Pin: 14}, "CFG 1 14"},
		{Request{Op: OpCount, Channel: 2}, "CNT 2"},
		{Request{Op: OpReset, Channel: 0}, "RST 0"},
		{Request{Op: OpPause, Channel: 9}, "PAU 9"},
		{Request{Op: OpLevel, Pin: 5, High: true}, "LVL 5 1"},
		{Request{Op: OpLevel, Pin: 5}, "LVL 5 0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.req.String())
		parsed, err := ParseRequest(tt.want)
		require.NoError(t, err)
		assert.Equal(t, tt.req, parsed)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Reply
		wantErr error
	}{
		{name: "ok", line: "OK", want: OK()},
		{name: "ok with value", line: "OK 4294967295", want: Value(4294967295)},
		{name: "ok zero", line: "OK 0", want: Value(0)},
		{name: "error with reason", line: "ERR no free unit", want: Fail("no free unit")},
		{name: "bare error", line: "ERR", want: Fail("error")},
		{name: "value overflow", line: "OK 4294967296", wantErr: ErrArgument},
		{name: "negative value", line: "OK -1", wantErr: ErrArgument},
		{name: "too many fields", line: "OK 1 2", wantErr: ErrArgCount},
		{name: "garbage", line: "HELLO", wantErr: ErrUnknownOp},
		{name: "empty", line: "", wantErr: ErrEmpty},
		{name: "echoed count", line: "OK CNT 0 111", want: Value(111).To(Request{Op: OpCount})},
		{name: "echoed configure", line: "OK CFG 1 14", want: OK().To(Request{Op: OpConfigure, Channel: 1, Pin: 14})},
		{name: "echoed level", line: "ok lvl 5 1", want: OK().To(Request{Op: OpLevel, Pin: 5, High: true})},
		{name: "echoed error", line: "ERR CNT 5 unknown_channel", want: Fail("unknown_channel").To(Request{Op: OpCount, Channel: 5})},
		{name: "echoed bare error", line: "ERR PAU 2", want: Fail("error").To(Request{Op: OpPause, Channel: 2})},
		{name: "truncated echo", line: "OK CFG 1", wantErr: ErrArgCount},
		{name: "bad echo argument", line: "OK CNT x 1", wantErr: ErrArgument},
		{name: "echoed count extra field", line: "OK CNT 0 1 2", wantErr: ErrArgCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplyString(t *testing.T) {
	assert.Equal(t, "OK", OK().String())
	assert.Equal(t, "OK 42", Value(42).String())
	assert.Equal(t, "ERR unknown_channel", Fail("unknown_channel").String())
	assert.Equal(t, "ERR error", Fail("  ").String())
}

func TestReplyEcho(t *testing.T) {
	cnt0 := Request{Op: OpCount, Channel: 0}
	cnt1 := Request{Op: OpCount, Channel: 1}

	r := Value(111).To(cnt0)
	assert.Equal(t, "OK CNT 0 111", r.String())
	assert.Equal(t, "OK RST 3", OK().To(Request{Op: OpReset, Channel: 3}).String())
	assert.Equal(t, "ERR CFG 1 14 pin_in_use", Fail("pin_in_use").To(Request{Op: OpConfigure, Channel: 1, Pin: 14}).String())

	assert.True(t, r.Answers(cnt0))
	assert.False(t, r.Answers(cnt1))
	assert.False(t, Value(111).Answers(cnt0), "unechoed reply answers nothing")

	parsed, err := ParseReply(r.String())
	require.NoError(t, err)
	assert.Equal(t, r, parsed)
}

func TestReplyErr(t *testing.T) {
	assert.NoError(t, Value(1).Err())

	err := Fail("unknown_channel").Err()
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "unknown_channel", remote.Reason)
	assert.Equal(t, "remote: unknown_channel", err.Error())
}
