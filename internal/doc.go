// Package internal 實作兩人猜拳對戰的即時配對與回合同步服務。
//
// # 房間生命週期
//
// 房間由第一位玩家建立（1 號位），第二位玩家加入後進入 active：
//   - createRoom：分配不重複的房間 ID 與較短的邀請碼
//   - joinRoom：房間不存在、已滿、邀請碼不符時只回覆請求者，房間不變
//   - 離線：剩一人時通知對手並回到 waiting；無人時立即銷毀
//
// # 回合同步
//
// 每位玩家的出拳都會廣播 choiceMade；兩個位置都出拳後結算並廣播 result，
// 結算與清空出拳在同一把鎖內完成。單人房間的出拳永遠不會觸發結算。
//
// # 元件
//
//   - Room：兩個固定位置、待結算出拳與狀態
//   - Broker：房間表、連接索引與訊息分派的唯一擁有者
//   - WebSocketHub：以 gorilla/websocket 實作 Transport，負責心跳與非阻塞投遞
//   - Handler：健康檢查、統計與唯讀房間列表
//
// # 使用範例
//
//	cfg := internal.DefaultConfig()
//	hub := internal.NewWebSocketHub(cfg.HubConfig(), logger)
//	broker := internal.NewBroker(hub, logger)
//	hub.Attach(broker)
//
//	handler := internal.NewHandler(broker, hub, logger)
//	log.Fatal(http.ListenAndServe(":8080", handler.Routes()))
//
// 客戶端連接 ws://localhost:8080/ws 後送出：
//
//	{"type":"createRoom","roomName":"friday"}
//	{"type":"joinRoom","roomId":"AB12CD","inviteCode":"WXYZ"}
//	{"type":"choice","choice":"rock"}
//
// 已知限制：不支援斷線重連，新的連接一律視為新玩家。
package internal
