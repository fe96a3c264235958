/*
 * This file is part of Xiaolang (https://github.com/xiaolang-labs/xiaolang).
 * Copyright (C) 2026 Xiaolang Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xiaolang-labs/xiaolang-hub/internal/dispatch"
	"github.com/xiaolang-labs/xiaolang-hub/internal/transport"
)

// remoteDispatcher posts dispatch turns to the smart-processor endpoint.
// Same request/response shapes as the in-process dispatcher; the server
// is stateless so a failed turn loses nothing.
type remoteDispatcher struct {
	url    string
	client *http.Client
}

func newRemoteDispatcher(url string) *remoteDispatcher {
	return &remoteDispatcher{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *remoteDispatcher) dispatch(req dispatch.Request) (dispatch.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return dispatch.Response{}, transport.NewError(transport.ErrorProtocol,
			"failed to encode dispatch request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return dispatch.Response{}, transport.NewError(transport.ErrorConfig,
			"invalid dispatch endpoint", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return dispatch.Response{}, transport.NewError(transport.ErrorNetwork,
			"dispatch endpoint unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client-side problem (bad URL, auth, contract drift): this
		// will not heal by retrying, so the caller disables the remote
		// path for the session.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return dispatch.Response{}, transport.NewError(transport.ErrorConfig,
			fmt.Sprintf("dispatch endpoint rejected request with %d: %s", resp.StatusCode, detail), nil)
	default:
		return dispatch.Response{}, transport.NewError(transport.ErrorNetwork,
			fmt.Sprintf("dispatch endpoint returned %d", resp.StatusCode), nil)
	}

	var decoded dispatch.Response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return dispatch.Response{}, transport.NewError(transport.ErrorProtocol,
			"malformed dispatch response", err)
	}
	return decoded, nil
}
