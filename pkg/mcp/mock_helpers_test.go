package mcp

import (
	"context"
	"fmt"

	"go.uber.org/mock/gomock"
)

// setupMockNativeClient returns a client that lists tools and closes
// cleanly. CallTool is NOT configured.
func setupMockNativeClient(ctrl *gomock.Controller, tools []NativeTool) *MockNativeClient {
	mock := NewMockNativeClient(ctrl)
	mock.EXPECT().ListTools(gomock.Any()).Return(tools, nil).AnyTimes()
	mock.EXPECT().Close().Return(nil).AnyTimes()
	return mock
}

// setupMockDialer dials the client registered under the target's name and
// refuses every other server.
func setupMockDialer(ctrl *gomock.Controller, clients map[string]NativeClient) *MockNativeDialer {
	mock := NewMockNativeDialer(ctrl)
	mock.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, target Target) (NativeClient, error) {
			if c, ok := clients[target.Name]; ok {
				return c, nil
			}
			return nil, fmt.Errorf("dial %s: connection refused", target.BaseURL)
		},
	).AnyTimes()
	return mock
}
