package whatsapp

// Page scripts evaluated inside WhatsApp Web. Each returns a JSON string so
// results cross the DevTools boundary as a single value.

// probeJS reports the page state and drains queued message events
const probeJS = `() => {
	const out = { state: 'loading', qr: '', messages: [] };
	const qr = document.querySelector('div[data-ref]');
	const w = window.__wamirror;
	if (w) {
		out.state = qr ? 'logged_out' : 'ready';
		out.messages = w.queue.splice(0, w.queue.length);
		return JSON.stringify(out);
	}
	if (qr) {
		out.state = 'qr';
		out.qr = qr.getAttribute('data-ref') || '';
	} else if (document.querySelector('#pane-side')) {
		out.state = 'app';
	}
	return JSON.stringify(out);
}`

// bootstrapJS exposes the web client's internal collections and installs the
// new-message hook. Returns "true" once installed.
const bootstrapJS = `() => {
	if (window.__wamirror) return 'true';
	const req = window.require;
	if (typeof req !== 'function') return 'false';
	let store;
	try {
		store = Object.assign({}, req('WAWebCollections'));
	} catch (e) {
		return 'false';
	}
	const optional = {
		SendText: 'WAWebSendTextMsgChatAction',
		ConversationMsgs: 'WAWebChatLoadMessages',
		WidFactory: 'WAWebWidFactory',
		FindChat: 'WAWebFindChatAction',
		Socket: 'WAWebSocketModel',
	};
	for (const [key, mod] of Object.entries(optional)) {
		try { store[key] = req(mod); } catch (e) {}
	}
	const serialize = (m) => ({
		id: (m.id && m.id._serialized) || '',
		from: (m.from && m.from._serialized) || '',
		to: (m.to && m.to._serialized) || '',
		fromMe: !!(m.id && m.id.fromMe),
		type: m.type || '',
		body: m.type === 'chat' ? (m.body || '') : '',
		timestamp: m.t || 0,
		notifyName: m.notifyName || '',
	});
	const findChat = async (chatId) => {
		const existing = store.Chat.get(chatId);
		if (existing) return existing;
		if (!store.FindChat || !store.WidFactory) return null;
		const res = await store.FindChat.findOrCreateLatestChat(store.WidFactory.createWid(chatId));
		return res && res.chat;
	};
	const state = { store, serialize, findChat, queue: [] };
	store.Msg.on('add', (m) => {
		if (m && m.isNewMsg) state.queue.push(serialize(m));
	});
	window.__wamirror = state;
	return 'true';
}`

const fetchMessagesJS = `async (chatId, limit) => {
	const w = window.__wamirror;
	if (!w) throw new Error('client not ready');
	const chat = await w.findChat(chatId);
	if (!chat) return '[]';
	const keep = (m) => !m.isNotification;
	let msgs = chat.msgs.getModelsArray().filter(keep);
	while (msgs.length < limit && w.store.ConversationMsgs) {
		const loaded = await w.store.ConversationMsgs.loadEarlierMsgs(chat);
		if (!loaded || !loaded.length) break;
		msgs = [...loaded.filter(keep), ...msgs];
	}
	if (msgs.length > limit) msgs = msgs.slice(-limit);
	return JSON.stringify(msgs.map(w.serialize));
}`

const chatsJS = `() => {
	const w = window.__wamirror;
	if (!w) throw new Error('client not ready');
	return JSON.stringify(w.store.Chat.getModelsArray().map((c) => ({
		id: c.id._serialized,
		name: c.formattedTitle || c.name || '',
		isGroup: !!c.isGroup,
		unreadCount: c.unreadCount || 0,
		timestamp: c.t || 0,
	})));
}`

const sendTextJS = `async (chatId, text) => {
	const w = window.__wamirror;
	if (!w || !w.store.SendText) throw new Error('client not ready');
	const chat = await w.findChat(chatId);
	if (!chat) throw new Error('chat not found: ' + chatId);
	await w.store.SendText.sendTextMsgToChat(chat, text);
	const last = chat.msgs.last();
	return JSON.stringify(last ? w.serialize(last) : {});
}`

const logoutJS = `async () => {
	const w = window.__wamirror;
	if (w && w.store.Socket && w.store.Socket.Socket) {
		await w.store.Socket.Socket.logout();
	}
	return 'true';
}`
