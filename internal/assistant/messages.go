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

import "github.com/xiaolang-labs/xiaolang-hub/internal/transport"

// User-visible status strings. Short and non-technical; the log carries
// the detail.
const (
	statusAwakeTimeout  = "唤醒已超时，请再说一次唤醒词"
	statusRestartFailed = "语音连接恢复失败，请手动重新开启聆听"
	statusReconnected   = "语音连接已恢复"
)

// statusMessage maps an error kind to its user-facing message.
func statusMessage(kind transport.ErrorKind) string {
	switch kind {
	case transport.ErrorPermission:
		return "麦克风权限被拒绝，请在系统设置中允许访问"
	case transport.ErrorDevice:
		return "没有找到可用的麦克风"
	case transport.ErrorNetwork:
		return "语音服务连接中断，正在尝试恢复"
	case transport.ErrorProtocol:
		return "语音服务返回了异常数据，正在尝试恢复"
	case transport.ErrorConfig:
		return "语音服务配置缺失，已切换到本地处理"
	case transport.ErrorUnsupported:
		return "当前环境不支持语音识别"
	default:
		return "语音助手出现了未知错误"
	}
}
