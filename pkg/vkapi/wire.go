// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vkapi

// Wire-format structs for the board-comment API and the execute
// (mini-script) facility. Kept separate from client.go so the JSON shape
// of the two endpoints is easy to audit against the VK API docs.

type apiErrorPayload struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type rawDoc struct {
	ID        int64  `json:"id"`
	OwnerID   int64  `json:"owner_id"`
	Title     string `json:"title"`
	Size      int64  `json:"size"`
	Ext       string `json:"ext"`
	URL       string `json:"url"`
	AccessKey string `json:"access_key"`
}

type rawAttachment struct {
	Type string  `json:"type"`
	Doc  *rawDoc `json:"doc"`
}

type rawComment struct {
	Text        string          `json:"text"`
	Attachments []rawAttachment `json:"attachments"`
}

type rawCommentPage struct {
	Count int          `json:"count"`
	Items []rawComment `json:"items"`
}

// boardCommentsResponse is the shape of board.getComments.
type boardCommentsResponse struct {
	Response *rawCommentPage  `json:"response"`
	Error    *apiErrorPayload `json:"error"`
}

// executeResponse is the shape of execute: one rawCommentPage per
// sub-call, in the order the mini-script issued them.
type executeResponse struct {
	Response []rawCommentPage `json:"response"`
	Error    *apiErrorPayload `json:"error"`
}

// serverTimeResponse is the shape of utils.getServerTime.
type serverTimeResponse struct {
	Response int64            `json:"response"`
	Error    *apiErrorPayload `json:"error"`
}
